package mcp

import "strings"

// Validate partitions requested into services that are connected and
// services that are not. Requested order is preserved.
func Validate(requested, connected []ServiceName) ValidationResult {
	live := make(map[ServiceName]bool, len(connected))
	for _, c := range connected {
		live[c] = true
	}

	res := ValidationResult{
		Available: []ServiceName{},
		Missing:   []ServiceName{},
		Warnings:  []string{},
	}
	for _, r := range requested {
		if live[r] {
			res.Available = append(res.Available, r)
		} else {
			res.Missing = append(res.Missing, r)
		}
	}

	res.Valid = len(res.Missing) == 0
	res.CanProceed = len(res.Available) > 0
	if !res.Valid {
		res.Warnings = append(res.Warnings, "Missing services: "+strings.Join(Strings(res.Missing), ", "))
	}
	return res
}
