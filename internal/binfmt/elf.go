package binfmt

import (
	"encoding/binary"
	"strings"

	"github.com/pkglink/linkage-cli/internal/vocab"
)

// ELF constants, straight from the System V gABI.
const (
	elfClassOffset = 4
	elfDataOffset  = 5

	elfClass32 = 1
	elfClass64 = 2
	elfData2LSB = 1
	elfData2MSB = 2

	ptInterp = 3

	shtStrtab  = 3
	shtDynamic = 6

	dtNull    = 0
	dtNeeded  = 1
	dtStrtab  = 5
	dtSoname  = 14
	dtRpath   = 15
	dtRunpath = 29
)

type elfSection struct {
	typ  uint32
	addr uint64
	off  uint64
	size uint64
}

// ReadELF parses an ELF image and returns its dependency record. It
// fails closed: any structural inconsistency stops parsing and returns
// whatever was collected up to that point, never an error. A build
// pipeline must not abort on one malformed file among thousands.
func ReadELF(data []byte) *Info {
	info := &Info{
		Handle: BinaryHandle{Format: FormatUnknown, ByteOrder: binary.LittleEndian},
		RPaths: RPathList{OwnTransitive: true},
	}

	format := ClassifyBytes(data)
	if !format.IsELF() {
		return info
	}
	// Classification needs only magic plus the class byte; the byte-order
	// field sits one past that.
	if len(data) <= elfDataOffset {
		return info
	}

	var order binary.ByteOrder = binary.LittleEndian
	if data[elfDataOffset] == elfData2MSB {
		order = binary.BigEndian
	}
	wordSize := format.WordSize()

	info.Handle.Format = format
	info.Handle.ByteOrder = order
	info.Handle.WordSize = wordSize

	cur := NewCursor(data, order)

	// Header table geometry. Field offsets differ between the two
	// classes only past the ident block and e_entry.
	var phoff, shoff uint64
	var phentsize, phnum, shentsize, shnum uint16
	var ok bool
	if wordSize == 8 {
		if phoff, ok = cur.U64(0x20); !ok {
			return info
		}
		if shoff, ok = cur.U64(0x28); !ok {
			return info
		}
		phentsize, _ = cur.U16(0x36)
		phnum, _ = cur.U16(0x38)
		shentsize, _ = cur.U16(0x3A)
		shnum, ok = cur.U16(0x3C)
	} else {
		var v32 uint32
		if v32, ok = cur.U32(0x1C); !ok {
			return info
		}
		phoff = uint64(v32)
		if v32, ok = cur.U32(0x20); !ok {
			return info
		}
		shoff = uint64(v32)
		phentsize, _ = cur.U16(0x2A)
		phnum, _ = cur.U16(0x2C)
		shentsize, _ = cur.U16(0x2E)
		shnum, ok = cur.U16(0x30)
	}
	if !ok {
		return info
	}

	info.Interp = readELFInterp(cur, phoff, phentsize, phnum, wordSize)

	sections := readELFSections(cur, shoff, shentsize, shnum, wordSize)

	// Walk every DYNAMIC section. Static executables have none; that is
	// an empty result, not an error.
	var neededOffs, rpathOffs, runpathOffs []uint64
	var sonameOff, strtabAddr uint64
	var haveSoname bool
	for _, sec := range sections {
		if sec.typ != shtDynamic {
			continue
		}
		entsize := uint64(2 * wordSize)
		for off := sec.off; off+entsize <= sec.off+sec.size; off += entsize {
			tag, ok1 := cur.Word(off, wordSize)
			val, ok2 := cur.Word(off+uint64(wordSize), wordSize)
			if !ok1 || !ok2 {
				break
			}
			switch tag {
			case dtNull:
				off = sec.off + sec.size // done with this section
			case dtNeeded:
				neededOffs = append(neededOffs, val)
			case dtRpath:
				rpathOffs = append(rpathOffs, val)
			case dtRunpath:
				runpathOffs = append(runpathOffs, val)
			case dtSoname:
				sonameOff, haveSoname = val, true
			case dtStrtab:
				strtabAddr = val
			}
		}
	}

	strtab := elfStringTable(cur, sections, strtabAddr)
	if strtab == nil {
		return info
	}

	for _, off := range neededOffs {
		if name, ok := strtab.CString(off); ok && name != "" {
			info.Needed = append(info.Needed, DependencyRecord{
				Name: vocab.NormalizeELF(name, wordSize),
			})
		}
	}
	if haveSoname {
		if name, ok := strtab.CString(sonameOff); ok {
			info.SelfName = name
		}
	}

	// RUNPATH supersedes RPATH per the ELF spec: when any DT_RUNPATH is
	// present the DT_RPATH entries are discarded entirely, and the
	// surviving entries no longer propagate to grandchildren.
	pathOffs := rpathOffs
	if len(runpathOffs) > 0 {
		pathOffs = runpathOffs
		info.RPaths.OwnTransitive = false
	}
	for _, off := range pathOffs {
		raw, ok := strtab.CString(off)
		if !ok {
			continue
		}
		for _, entry := range splitSearchPath(raw) {
			info.RPaths.Own = append(info.RPaths.Own,
				vocab.NormalizeELF(entry, wordSize))
		}
	}

	return info
}

// readELFInterp scans the program headers for PT_INTERP and returns the
// program interpreter string, empty when absent or unreadable.
func readELFInterp(cur *Cursor, phoff uint64, phentsize, phnum uint16, wordSize int) string {
	for i := uint16(0); i < phnum; i++ {
		base := phoff + uint64(i)*uint64(phentsize)
		ptype, ok := cur.U32(base)
		if !ok {
			return ""
		}
		if ptype != ptInterp {
			continue
		}
		var off uint64
		if wordSize == 8 {
			off, ok = cur.U64(base + 8)
		} else {
			var v32 uint32
			v32, ok = cur.U32(base + 4)
			off = uint64(v32)
		}
		if !ok {
			return ""
		}
		interp, _ := cur.CString(off)
		return interp
	}
	return ""
}

// readELFSections reads the section header table. A truncated table
// yields the sections read so far.
func readELFSections(cur *Cursor, shoff uint64, shentsize, shnum uint16, wordSize int) []elfSection {
	sections := make([]elfSection, 0, shnum)
	for i := uint16(0); i < shnum; i++ {
		base := shoff + uint64(i)*uint64(shentsize)
		typ, ok := cur.U32(base + 4)
		if !ok {
			break
		}
		var sec elfSection
		sec.typ = typ
		if wordSize == 8 {
			sec.addr, _ = cur.U64(base + 16)
			sec.off, _ = cur.U64(base + 24)
			sec.size, ok = cur.U64(base + 32)
		} else {
			var v32 uint32
			v32, _ = cur.U32(base + 12)
			sec.addr = uint64(v32)
			v32, _ = cur.U32(base + 16)
			sec.off = uint64(v32)
			v32, ok = cur.U32(base + 20)
			sec.size = uint64(v32)
		}
		if !ok {
			break
		}
		sections = append(sections, sec)
	}
	return sections
}

// elfStringTable locates the STRTAB section containing the dynamic
// string table's virtual address and returns a cursor over its bytes.
func elfStringTable(cur *Cursor, sections []elfSection, vaddr uint64) *Cursor {
	if vaddr == 0 {
		return nil
	}
	for _, sec := range sections {
		if sec.typ != shtStrtab {
			continue
		}
		if vaddr < sec.addr || vaddr >= sec.addr+sec.size {
			continue
		}
		start := sec.off + (vaddr - sec.addr)
		size := sec.size - (vaddr - sec.addr)
		sub, ok := cur.Sub(start, size)
		if !ok {
			return nil
		}
		return sub
	}
	return nil
}

// splitSearchPath splits a :-joined DT_RPATH/DT_RUNPATH value, dropping
// empty entries and trailing slashes.
func splitSearchPath(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ":") {
		entry = strings.TrimRight(entry, "/")
		if entry == "" {
			continue
		}
		out = append(out, entry)
	}
	return out
}
