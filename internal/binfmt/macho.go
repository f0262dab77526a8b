package binfmt

import (
	"encoding/binary"
	"strings"

	"github.com/pkglink/linkage-cli/internal/vocab"
)

// Mach-O load command and header constants, from mach-o/loader.h.
const (
	lcReqDyld = 0x80000000

	lcLoadDylib     = 0xC
	lcIDDylib       = 0xD
	lcLazyLoadDylib = 0x20
	lcLoadWeakDylib = 0x18 | lcReqDyld
	lcRpath         = 0x1C | lcReqDyld
	lcReexportDylib = 0x1F | lcReqDyld

	machoHeaderSize32 = 28
	machoHeaderSize64 = 32

	fatHeaderSize    = 8
	fatArchEntrySize = 20
)

// CPU type values from mach/machine.h.
const (
	cpuArch64  = 0x01000000
	cpuTypeX86 = 7
	cpuTypeArm = 12
	cpuTypePpc = 18

	cpuTypeX86_64 = cpuTypeX86 | cpuArch64
	cpuTypeArm64  = cpuTypeArm | cpuArch64
	cpuTypePpc64  = cpuTypePpc | cpuArch64
)

var cpuTypeNames = map[uint32]string{
	cpuTypeX86:    "i386",
	cpuTypeX86_64: "x86_64",
	cpuTypeArm:    "arm",
	cpuTypeArm64:  "arm64",
	cpuTypePpc:    "ppc",
	cpuTypePpc64:  "ppc64",
}

// CPUTypeForArch maps an architecture selector string to its Mach-O CPU
// type value. The empty string and "any" accept every slice.
func CPUTypeForArch(arch string) (uint32, bool) {
	for cpu, name := range cpuTypeNames {
		if name == arch {
			return cpu, true
		}
	}
	return 0, false
}

// ReadMachO parses a Mach-O image, descending into the matching slice of
// a fat container, and returns its dependency record. requestedArch
// selects the slice ("x86_64", "arm64", ...); empty or "any" takes the
// first slice available. Like ReadELF it fails closed on malformed input
// and on a fat container with no matching slice.
func ReadMachO(data []byte, requestedArch string) *Info {
	info := &Info{
		Handle: BinaryHandle{Format: FormatUnknown, ByteOrder: binary.LittleEndian},
		RPaths: RPathList{OwnTransitive: true},
	}

	switch ClassifyBytes(data) {
	case FormatMachOFat:
		cur := NewCursor(data, binary.BigEndian)
		sub, off, size, ok := selectFatSlice(cur, requestedArch)
		if !ok {
			return info
		}
		readMachOThin(sub, requestedArch, info)
		info.Handle.FatOffset = off
		info.Handle.FatSize = size
		return info
	case FormatMachO32, FormatMachO64:
		readMachOThin(NewCursor(data, binary.BigEndian), requestedArch, info)
		return info
	}
	return info
}

// selectFatSlice walks the big-endian fat architecture table and returns
// a sub-cursor over the slice matching requestedArch, plus the slice's
// offset and size within the container.
func selectFatSlice(cur *Cursor, requestedArch string) (*Cursor, uint64, uint64, bool) {
	wantCPU, haveWant := CPUTypeForArch(requestedArch)
	anyArch := requestedArch == "" || requestedArch == "any"
	if !anyArch && !haveWant {
		return nil, 0, 0, false
	}

	narch, ok := cur.U32(4)
	if !ok {
		return nil, 0, 0, false
	}
	for i := uint64(0); i < uint64(narch); i++ {
		base := uint64(fatHeaderSize) + i*fatArchEntrySize
		cpu, ok1 := cur.U32(base)
		off, ok2 := cur.U32(base + 8)
		size, ok3 := cur.U32(base + 12)
		if !ok1 || !ok2 || !ok3 {
			return nil, 0, 0, false
		}
		if !anyArch && cpu != wantCPU {
			continue
		}
		sub, ok := cur.Sub(uint64(off), uint64(size))
		if !ok {
			return nil, 0, 0, false
		}
		return sub, uint64(off), uint64(size), true
	}
	return nil, 0, 0, false
}

// readMachOThin parses a single-architecture image into info.
func readMachOThin(cur *Cursor, requestedArch string, info *Info) {
	head, ok := cur.Bytes(0, 4)
	if !ok {
		return
	}
	magic := binary.BigEndian.Uint32(head)

	var order binary.ByteOrder
	var format Format
	var headerSize uint64
	switch magic {
	case machoMagic32:
		order, format, headerSize = binary.BigEndian, FormatMachO32, machoHeaderSize32
	case machoCigam32:
		order, format, headerSize = binary.LittleEndian, FormatMachO32, machoHeaderSize32
	case machoMagic64:
		order, format, headerSize = binary.BigEndian, FormatMachO64, machoHeaderSize64
	case machoCigam64:
		order, format, headerSize = binary.LittleEndian, FormatMachO64, machoHeaderSize64
	default:
		return
	}
	cur = cur.WithOrder(order)

	cpu, ok := cur.U32(4)
	if !ok {
		return
	}
	if requestedArch != "" && requestedArch != "any" {
		// Thin file of a foreign architecture: empty result for this
		// request, same as a fat container missing the slice.
		want, have := CPUTypeForArch(requestedArch)
		if !have || cpu != want {
			return
		}
	}

	ncmds, ok := cur.U32(16)
	if !ok {
		return
	}

	info.Handle.Format = format
	info.Handle.ByteOrder = order
	info.Handle.WordSize = format.WordSize()

	// Load commands are a (cmd, cmdsize) tagged sequence, so unknown
	// commands skip safely by length.
	off := headerSize
	for i := uint32(0); i < ncmds; i++ {
		cmd, ok1 := cur.U32(off)
		cmdsize, ok2 := cur.U32(off + 4)
		if !ok1 || !ok2 || cmdsize < 8 {
			return
		}
		switch cmd {
		case lcLoadDylib, lcLoadWeakDylib, lcReexportDylib, lcLazyLoadDylib:
			if name, ok := machoCommandString(cur, off, cmdsize); ok {
				info.Needed = append(info.Needed, DependencyRecord{
					Name: vocab.NormalizeMachO(name),
				})
			}
		case lcIDDylib:
			if name, ok := machoCommandString(cur, off, cmdsize); ok {
				info.SelfName = name
				info.Needed = append(info.Needed, DependencyRecord{
					Name:   vocab.NormalizeMachO(name),
					SelfID: true,
				})
			}
		case lcRpath:
			// One path per LC_RPATH, no :-joining on this platform.
			if path, ok := machoCommandString(cur, off, cmdsize); ok {
				path = strings.TrimRight(path, "/")
				if path != "" {
					info.RPaths.Own = append(info.RPaths.Own,
						vocab.NormalizeMachO(path))
				}
			}
		}
		off += uint64(cmdsize)
	}

	// A binary occasionally declares its own install name as a regular
	// dependency; keep it out of the list or the crawl cycles on itself.
	if info.SelfName != "" {
		filtered := info.Needed[:0]
		norm := vocab.NormalizeMachO(info.SelfName)
		for _, dep := range info.Needed {
			if !dep.SelfID && dep.Name == norm {
				continue
			}
			filtered = append(filtered, dep)
		}
		info.Needed = filtered
	}
}

// machoCommandString reads the lc_str payload of a dylib or rpath load
// command. The string offset at byte 8 is relative to the start of the
// command, and the string may legally run to the end of cmdsize without
// a terminator.
func machoCommandString(cur *Cursor, cmdOff uint64, cmdsize uint32) (string, bool) {
	strOff, ok := cur.U32(cmdOff + 8)
	if !ok || uint64(strOff) >= uint64(cmdsize) {
		return "", false
	}
	raw, ok := cur.Bytes(cmdOff+uint64(strOff), uint64(cmdsize)-uint64(strOff))
	if !ok {
		return "", false
	}
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}
	if len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}
