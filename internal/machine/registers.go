package machine

// RegisterFile holds the eight 32-bit general-purpose registers, the
// instruction pointer, flags, and the six 16-bit segment registers of
// a real-mode-capable x86 guest.
type RegisterFile struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESP uint32
	EBP uint32
	ESI uint32
	EDI uint32
	EIP uint32
	EFLAGS uint32

	CS uint16
	SS uint16
	DS uint16
	ES uint16
	FS uint16
	GS uint16
}

// ToMap serializes the register file as a mapping from lowercase
// register name to integer value, the wire shape used by both the
// HTTP registers endpoint and the WebSocket registers:data frame.
func (r RegisterFile) ToMap() map[string]uint32 {
	return map[string]uint32{
		"eax":    r.EAX,
		"ebx":    r.EBX,
		"ecx":    r.ECX,
		"edx":    r.EDX,
		"esp":    r.ESP,
		"ebp":    r.EBP,
		"esi":    r.ESI,
		"edi":    r.EDI,
		"eip":    r.EIP,
		"eflags": r.EFLAGS,
		"cs":     uint32(r.CS),
		"ss":     uint32(r.SS),
		"ds":     uint32(r.DS),
		"es":     uint32(r.ES),
		"fs":     uint32(r.FS),
		"gs":     uint32(r.GS),
	}
}

// RegisterFileFromMap reconstructs a RegisterFile from its wire map,
// used by test fixtures and golden comparisons.
func RegisterFileFromMap(m map[string]uint32) RegisterFile {
	return RegisterFile{
		EAX:    m["eax"],
		EBX:    m["ebx"],
		ECX:    m["ecx"],
		EDX:    m["edx"],
		ESP:    m["esp"],
		EBP:    m["ebp"],
		ESI:    m["esi"],
		EDI:    m["edi"],
		EIP:    m["eip"],
		EFLAGS: m["eflags"],
		CS:     uint16(m["cs"]),
		SS:     uint16(m["ss"]),
		DS:     uint16(m["ds"]),
		ES:     uint16(m["es"]),
		FS:     uint16(m["fs"]),
		GS:     uint16(m["gs"]),
	}
}
