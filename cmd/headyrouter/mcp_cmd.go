package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/HeadyMe/heady-mcp-router/internal/config"
	"github.com/HeadyMe/heady-mcp-router/internal/controlplane"
	"github.com/HeadyMe/heady-mcp-router/internal/governance"
	"github.com/HeadyMe/heady-mcp-router/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Inspect services, select combinations and call backend tools",
	Long: `Registry commands (services, presets, recommend) run locally. The rest
talk to the daemon, which owns the live backend connections.`,
}

var mcpServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List registered services",
	RunE:  runMCPServices,
}

var mcpPresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List service presets",
	RunE:  runMCPPresets,
}

var mcpRecommendCmd = &cobra.Command{
	Use:   "recommend <task-description>",
	Short: "Preview which services would be recommended for a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMCPRecommend,
}

var mcpSelectCmd = &cobra.Command{
	Use:   "select",
	Short: "Resolve a combination and validate it against the daemon",
	RunE:  runMCPSelect,
}

var mcpValidateCmd = &cobra.Command{
	Use:   "validate <service>...",
	Short: "Check which services are connected",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMCPValidate,
}

var mcpServersCmd = &cobra.Command{
	Use:   "servers",
	Short: "List configured backends and their connection state",
	RunE:  runMCPServers,
}

var mcpConnectCmd = &cobra.Command{
	Use:   "connect <server>",
	Short: "Connect a configured backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPConnect,
}

var mcpDisconnectCmd = &cobra.Command{
	Use:   "disconnect <server>",
	Short: "Disconnect a backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPDisconnect,
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools <server>",
	Short: "List the tools of a connected backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runMCPTools,
}

var mcpCallCmd = &cobra.Command{
	Use:   "call <server> <tool>",
	Short: "Call a backend tool through the daemon",
	Args:  cobra.ExactArgs(2),
	RunE:  runMCPCall,
}

var (
	filterCategory   string
	filterCapability string
	selectServices   string
	selectPreset     string
	selectTask       string
	callArgs         string
	callConfirm      bool
)

func init() {
	mcpCmd.AddCommand(mcpServicesCmd, mcpPresetsCmd, mcpRecommendCmd, mcpSelectCmd, mcpValidateCmd,
		mcpServersCmd, mcpConnectCmd, mcpDisconnectCmd, mcpToolsCmd, mcpCallCmd)

	mcpServicesCmd.Flags().StringVar(&filterCategory, "category", "", "Only services in this category")
	mcpServicesCmd.Flags().StringVar(&filterCapability, "capability", "", "Only services with this capability")

	mcpSelectCmd.Flags().StringVar(&selectServices, "services", "", "Explicit services (comma-separated)")
	mcpSelectCmd.Flags().StringVar(&selectPreset, "preset", "", "Preset name")
	mcpSelectCmd.Flags().StringVar(&selectTask, "task", "", "Task description to recommend from")

	mcpCallCmd.Flags().StringVar(&callArgs, "args", "{}", "Tool arguments as a JSON object")
	mcpCallCmd.Flags().BoolVar(&callConfirm, "confirm", false, "Confirm a destructive operation")
}

// localResolver builds the registry and recommender without a daemon.
func localResolver() (*mcp.Resolver, error) {
	path := config.Default().Paths.Rules
	if v := os.Getenv("HEADY_PATH_RULES"); v != "" {
		path = v
	}
	rules, err := mcp.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading routing rules: %w", err)
	}
	reg := mcp.NewDefaultRegistry()
	rec, err := mcp.NewRecommender(rules, reg)
	if err != nil {
		return nil, err
	}
	return mcp.NewResolver(reg, rec, rules.DefaultPreset, nil), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinNames(names []mcp.ServiceName) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(mcp.Strings(names), ", ")
}

// --- Local registry commands ---

func runMCPServices(cmd *cobra.Command, args []string) error {
	r, err := localResolver()
	if err != nil {
		return err
	}
	reg := r.Registry()

	keep := map[mcp.ServiceName]bool{}
	for _, s := range reg.List() {
		keep[s.Name] = true
	}
	if filterCategory != "" {
		byCat := map[mcp.ServiceName]bool{}
		for _, n := range reg.ByCategory(mcp.Category(strings.ToLower(filterCategory))) {
			byCat[n] = keep[n]
		}
		keep = byCat
	}
	if filterCapability != "" {
		byCap := map[mcp.ServiceName]bool{}
		for _, n := range reg.ByCapability(filterCapability) {
			byCap[n] = keep[n]
		}
		keep = byCap
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tPRIORITY\tCAPABILITIES")
	shown := 0
	for _, s := range reg.List() {
		if !keep[s.Name] {
			continue
		}
		shown++
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Category, s.Priority, strings.Join(s.Capabilities, ", "))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d of %d services\n", shown, reg.Count())
	return nil
}

func runMCPPresets(cmd *cobra.Command, args []string) error {
	r, err := localResolver()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tSERVICES")
	for _, p := range r.Registry().Presets() {
		fmt.Fprintf(w, "%s\t%s\n", p.Name, joinNames(p.Services))
	}
	return w.Flush()
}

func runMCPRecommend(cmd *cobra.Command, args []string) error {
	r, err := localResolver()
	if err != nil {
		return err
	}
	task := strings.Join(args, " ")
	rec := r.Recommender().Recommend(task, mcp.RecommendContext{})

	fmt.Printf("Task: %s\n\n", task)
	fmt.Println(titleStyle.Render("Recommended services:"))
	for _, s := range rec.Services {
		fmt.Printf("  %s %s\n", mark(true), s)
	}
	if len(rec.Reasoning) > 0 {
		fmt.Println("\nReasoning:")
		for _, line := range rec.Reasoning {
			fmt.Printf("  - %s\n", line)
		}
	}
	if rec.Preset != "" {
		fmt.Printf("\nMatches preset: %s\n", rec.Preset)
	}
	a := rec.Allocation
	fmt.Printf("\nComplexity: %s  Priority: %s  CPU: %s  Memory: %s\n",
		a.Complexity, a.Priority, a.Resources.CPU, a.Resources.Memory)
	return nil
}

// --- Daemon commands ---

func printValidation(v mcp.ValidationResult) {
	fmt.Printf("Available: %s\n", joinNames(v.Available))
	fmt.Printf("Missing:   %s\n", joinNames(v.Missing))
	switch {
	case v.Valid:
		fmt.Println(okStyle.Render("All services connected"))
	case v.CanProceed:
		fmt.Println(warnStyle.Render("Partially available, can proceed"))
	default:
		fmt.Println(failStyle.Render("No requested service is connected"))
	}
}

func runMCPSelect(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"services": splitList(selectServices),
		"preset":   selectPreset,
		"task":     selectTask,
	}
	resp, err := apiPost("/api/mcp/select", body, nil)
	if err != nil {
		return err
	}
	var out struct {
		Selection mcp.Selection `json:"selection"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return err
	}
	sel := out.Selection

	fmt.Printf("Source:   %s\n", sel.Source)
	fmt.Printf("Services: %s\n", joinNames(sel.Services))
	if len(sel.Metadata.Categories) > 0 {
		cats := make([]string, len(sel.Metadata.Categories))
		for i, c := range sel.Metadata.Categories {
			cats[i] = string(c)
		}
		fmt.Printf("Categories: %s\n", strings.Join(cats, ", "))
	}
	fmt.Println()
	printValidation(sel.Validation)
	return nil
}

func runMCPValidate(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/api/mcp/validate", map[string]any{"services": args}, nil)
	if err != nil {
		return err
	}
	var out struct {
		Validation mcp.ValidationResult `json:"validation"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return err
	}
	printValidation(out.Validation)
	return nil
}

func runMCPServers(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/mcp/servers")
	if err != nil {
		return err
	}
	var out struct {
		Servers []controlplane.ServerStatus `json:"servers"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return err
	}
	if len(out.Servers) == 0 {
		fmt.Println(mutedStyle.Render("No backends configured."))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRANSPORT\tCONNECTED\tTOOLS\tSERVER")
	for _, s := range out.Servers {
		server := "-"
		if s.Server != nil {
			server = s.Server.Name + " " + s.Server.Version
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Name, s.Transport, mark(s.Connected), s.Tools, server)
	}
	return w.Flush()
}

func runMCPConnect(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/api/mcp/servers/"+args[0]+"/connect", nil, nil)
	if err != nil {
		return err
	}
	var out struct {
		Server controlplane.ServerStatus `json:"server"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return err
	}
	fmt.Printf("%s Connected %s (%d tools)\n", mark(true), out.Server.Name, out.Server.Tools)
	return nil
}

func runMCPDisconnect(cmd *cobra.Command, args []string) error {
	if _, err := apiPost("/api/mcp/servers/"+args[0]+"/disconnect", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Disconnected %s\n", args[0])
	return nil
}

func runMCPTools(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tools/" + args[0])
	if err != nil {
		return err
	}
	var out struct {
		Tools []backend.ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, t := range out.Tools {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
	}
	w.Flush()
	fmt.Printf("\nTotal: %d tools\n", len(out.Tools))
	return nil
}

func runMCPCall(cmd *cobra.Command, args []string) error {
	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(callArgs), &toolArgs); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	headers := map[string]string{}
	if callConfirm {
		headers[governance.HeaderConfirmed] = "true"
	}
	body := map[string]any{
		"server": args[0],
		"tool":   args[1],
		"args":   toolArgs,
	}
	resp, err := apiPostTimeout("/api/mcp/call", body, headers, CallClientTimeout)
	if err != nil {
		return err
	}

	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(out.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
