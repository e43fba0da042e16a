package dosboxcfg

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/dosdebug/broker/internal/machine"
)

// registerLineRE matches "NAME=HEXVALUE" or "NAME:HEXVALUE" assignments
// inside a register-dump block, the way v4l2_device.go's capability
// parsing scans driver output line by line with a compiled regexp.
var registerLineRE = regexp.MustCompile(`(?i)\b([A-Z]{2,6})[=:]([0-9A-F]+)\b`)

var registerDumpMarker = regexp.MustCompile(`(?i)\bEAX[=:][0-9A-F]+\b`)

var register32 = map[string]bool{
	"EAX": true, "EBX": true, "ECX": true, "EDX": true,
	"ESP": true, "EBP": true, "ESI": true, "EDI": true,
	"EIP": true, "EFLAGS": true,
}

var register16 = map[string]bool{
	"CS": true, "SS": true, "DS": true, "ES": true, "FS": true, "GS": true,
}

// ParseRegisterDump reads path and extracts the last register-dump
// block, located by finding the final "EAX[=:]XXXXXXXX" occurrence and
// scanning forward from there. Absent matches yield a zero-value
// RegisterFile, not an error (spec.md §4.6).
func ParseRegisterDump(path string) (machine.RegisterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return machine.RegisterFile{}, err
	}
	text := string(data)

	locs := registerDumpMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return machine.RegisterFile{}, nil
	}
	last := locs[len(locs)-1]

	// Scan forward from the marker to the next blank line (or EOF),
	// the dump block's conventional terminator.
	block := text[last[0]:]
	if idx := strings.Index(block, "\n\n"); idx >= 0 {
		block = block[:idx]
	}

	var regs machine.RegisterFile
	for _, m := range registerLineRE.FindAllStringSubmatch(block, -1) {
		name := strings.ToUpper(m[1])
		value, convErr := strconv.ParseUint(m[2], 16, 32)
		if convErr != nil {
			continue
		}
		assignRegister(&regs, name, uint32(value))
	}
	return regs, nil
}

func assignRegister(regs *machine.RegisterFile, name string, value uint32) {
	switch {
	case register32[name]:
		switch name {
		case "EAX":
			regs.EAX = value
		case "EBX":
			regs.EBX = value
		case "ECX":
			regs.ECX = value
		case "EDX":
			regs.EDX = value
		case "ESP":
			regs.ESP = value
		case "EBP":
			regs.EBP = value
		case "ESI":
			regs.ESI = value
		case "EDI":
			regs.EDI = value
		case "EIP":
			regs.EIP = value
		case "EFLAGS":
			regs.EFLAGS = value
		}
	case register16[name]:
		v16 := uint16(value & 0xFFFF)
		switch name {
		case "CS":
			regs.CS = v16
		case "SS":
			regs.SS = v16
		case "DS":
			regs.DS = v16
		case "ES":
			regs.ES = v16
		case "FS":
			regs.FS = v16
		case "GS":
			regs.GS = v16
		}
	}
}
