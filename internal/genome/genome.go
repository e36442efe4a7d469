// Package genome reads and writes the Tierra .tie genome file format:
// a free-form header, a bare CODE marker, then one mnemonic per line.
package genome

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/tierra-vm/tierra/internal/isa"
)

// Load reads a .tie file and returns its opcode bytes in order.
// Anything before the bare "CODE" line is header and is ignored;
// after it, blank lines, lines starting with ";", and lines starting
// with "track" are skipped, and every other line's first
// whitespace-separated token (before any inline ";" comment) is
// looked up as a mnemonic.
func Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("genome: open %s: %w", path, err)
	}
	defer f.Close()

	var opcodes []byte
	inCode := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "CODE" {
			inCode = true
			continue
		}
		if !inCode {
			continue
		}
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "track") {
			continue
		}
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		op, ok := isa.NameToOpcode[fields[0]]
		if ok {
			opcodes = append(opcodes, byte(op))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("genome: read %s: %w", path, err)
	}
	return opcodes, nil
}

// Save writes genome to path in .tie format, tagging it with name and
// parent for the header.
func Save(path string, data []byte, name, parent string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("genome: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "format: 3  bits: 0")
	fmt.Fprintf(w, "genotype: %s  parent genotype: %s\n", name, parent)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CODE")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "track 0:")
	fmt.Fprintln(w)
	for i, b := range data {
		mnemonic, ok := isa.OpcodeToName[isa.Opcode(int(b)%isa.NumOpcodes)]
		if !ok {
			mnemonic = fmt.Sprintf("unk%d", b)
		}
		fmt.Fprintf(w, "%-9s; %3d\n", mnemonic, i)
	}
	return w.Flush()
}

// Find locates name+".tie" in one of searchPaths, in order, and
// returns its full path if found.
func Find(name string, searchPaths []string) (string, bool) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}
	for _, sp := range searchPaths {
		candidate := sp + string(os.PathSeparator) + name + ".tie"
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}
