package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
)

type matrixChecksumWorkload struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Dir     string `json:"dir,omitempty"`
	Input   string `json:"input,omitempty"`
}

type matrixChecksumPayload struct {
	Variants    []string                 `json:"variants"`
	Workloads   []matrixChecksumWorkload `json:"workloads"`
	Events      []string                 `json:"events"`
	Invocations int                      `json:"invocations"`
	Profile     Profile                  `json:"profile"`
}

// MatrixChecksum returns a short, stable checksum of the executed matrix:
// selected variants and workloads (with their commands), events,
// invocation count and build profile. Two runs with the same checksum
// measured the same thing, so their results are comparable.
//
// It computes MD5 over a canonical JSON representation and returns the first 6 hex
// characters (equivalent to `md5sum | cut -c1-6`).
func MatrixChecksum(suite *SuiteConfig, rc *RunConfiguration) (string, error) {
	if suite == nil || rc == nil {
		return "", nil
	}

	selected := make(map[string]bool, len(rc.Workloads))
	for _, name := range rc.Workloads {
		selected[name] = true
	}

	payload := matrixChecksumPayload{
		Variants:    append([]string(nil), rc.Variants...),
		Events:      append([]string(nil), rc.EventsOrDefault()...),
		Invocations: rc.Invocations,
		Profile:     rc.Profile,
	}
	for _, w := range suite.Workloads {
		if !selected[w.Name] {
			continue
		}
		payload.Workloads = append(payload.Workloads, matrixChecksumWorkload{
			Name:    w.Name,
			Command: w.Command,
			Dir:     w.Dir,
			Input:   w.Input,
		})
	}

	sort.Strings(payload.Variants)
	sort.Strings(payload.Events)
	sort.Slice(payload.Workloads, func(i, j int) bool {
		return payload.Workloads[i].Name < payload.Workloads[j].Name
	})

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}
