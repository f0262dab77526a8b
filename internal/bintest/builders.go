// Package bintest builds minimal but structurally valid ELF and Mach-O
// images in memory for tests. The layouts contain only what the
// dependency readers consume: dynamic sections, string tables and load
// commands.
package bintest

import (
	"encoding/binary"
)

// ELFOpts describes the synthetic ELF image to build. Little-endian
// unless BigEndian is set.
type ELFOpts struct {
	Needed    []string
	RPath     []string // DT_RPATH, :-joined into one entry
	RunPath   []string // DT_RUNPATH, :-joined into one entry
	SOName    string
	Interp    string
	BigEndian bool
}

// BuildELF64 produces an ELF64 image with a dynamic section, its string
// table, and an optional PT_INTERP program header.
func BuildELF64(opts ELFOpts) []byte {
	return buildELF(opts, 8)
}

// BuildELF32 produces the same image in ELF32 layout.
func BuildELF32(opts ELFOpts) []byte {
	return buildELF(opts, 4)
}

func buildELF(opts ELFOpts, wordSize int) []byte {
	var order binary.ByteOrder = binary.LittleEndian
	dataByte := byte(1)
	if opts.BigEndian {
		order = binary.BigEndian
		dataByte = 2
	}

	// Structure sizes and header field offsets differ per class.
	type geom struct {
		ehdr, phdr, shdr, dyn                  uint64
		class                                  byte
		machine                                uint16
		ePhoff, eShoff                         uint64
		ePhentsize, ePhnum, eShentsize, eShnum uint64
		pOffset, pFilesz                       uint64
		shAddr, shOff, shSize                  uint64
	}
	var g geom
	if wordSize == 8 {
		g = geom{
			ehdr: 64, phdr: 56, shdr: 64, dyn: 16,
			class: 2, machine: 0x3E, // x86-64
			ePhoff: 0x20, eShoff: 0x28,
			ePhentsize: 0x36, ePhnum: 0x38, eShentsize: 0x3A, eShnum: 0x3C,
			pOffset: 8, pFilesz: 32,
			shAddr: 16, shOff: 24, shSize: 32,
		}
	} else {
		g = geom{
			ehdr: 52, phdr: 32, shdr: 40, dyn: 8,
			class: 1, machine: 3, // i386
			ePhoff: 0x1C, eShoff: 0x20,
			ePhentsize: 0x2A, ePhnum: 0x2C, eShentsize: 0x2E, eShnum: 0x30,
			pOffset: 4, pFilesz: 16,
			shAddr: 12, shOff: 16, shSize: 20,
		}
	}

	// String table: NUL-led, then every string the dynamic section
	// references.
	strtab := []byte{0}
	strOff := func(s string) uint64 {
		off := uint64(len(strtab))
		strtab = append(strtab, []byte(s)...)
		strtab = append(strtab, 0)
		return off
	}

	type dynEntry struct{ tag, val uint64 }
	var dyn []dynEntry
	for _, name := range opts.Needed {
		dyn = append(dyn, dynEntry{1, strOff(name)}) // DT_NEEDED
	}
	if opts.SOName != "" {
		dyn = append(dyn, dynEntry{14, strOff(opts.SOName)}) // DT_SONAME
	}
	if len(opts.RPath) > 0 {
		dyn = append(dyn, dynEntry{15, strOff(joinColon(opts.RPath))}) // DT_RPATH
	}
	if len(opts.RunPath) > 0 {
		dyn = append(dyn, dynEntry{29, strOff(joinColon(opts.RunPath))}) // DT_RUNPATH
	}

	// Layout, in file order: ehdr, phdrs, interp, strtab, dynamic, shdrs.
	phnum := 0
	if opts.Interp != "" {
		phnum = 1
	}
	phoff := g.ehdr
	interpOff := phoff + uint64(phnum)*g.phdr
	interpSize := uint64(0)
	if opts.Interp != "" {
		interpSize = uint64(len(opts.Interp)) + 1
	}
	strtabOff := align8(interpOff + interpSize)
	dynOff := align8(strtabOff + uint64(len(strtab)))
	dyn = append(dyn, dynEntry{5, strtabOff}) // DT_STRTAB, vaddr == file offset here
	dyn = append(dyn, dynEntry{0, 0})         // DT_NULL
	dynSize := uint64(len(dyn)) * g.dyn
	shoff := align8(dynOff + dynSize)

	total := shoff + 3*g.shdr
	img := make([]byte, total)

	putWord := func(off, val uint64) {
		if wordSize == 8 {
			order.PutUint64(img[off:], val)
		} else {
			order.PutUint32(img[off:], uint32(val))
		}
	}

	// ELF header.
	copy(img, []byte{0x7F, 'E', 'L', 'F', g.class, dataByte, 1, 0})
	order.PutUint16(img[0x10:], 3) // e_type ET_DYN
	order.PutUint16(img[0x12:], g.machine)
	order.PutUint32(img[0x14:], 1) // e_version
	if phnum > 0 {
		putWord(g.ePhoff, phoff)
	}
	putWord(g.eShoff, shoff)
	order.PutUint16(img[g.ePhentsize:], uint16(g.phdr))
	order.PutUint16(img[g.ePhnum:], uint16(phnum))
	order.PutUint16(img[g.eShentsize:], uint16(g.shdr))
	order.PutUint16(img[g.eShnum:], 3)

	// PT_INTERP program header plus the interpreter string.
	if opts.Interp != "" {
		order.PutUint32(img[phoff:], 3) // PT_INTERP
		putWord(phoff+g.pOffset, interpOff)
		putWord(phoff+g.pFilesz, interpSize)
		copy(img[interpOff:], opts.Interp)
	}

	copy(img[strtabOff:], strtab)

	for i, entry := range dyn {
		base := dynOff + uint64(i)*g.dyn
		putWord(base, entry.tag)
		putWord(base+uint64(wordSize), entry.val)
	}

	// Section headers: null, STRTAB, DYNAMIC. The string table's sh_addr
	// matches DT_STRTAB so the reader can map the vaddr back.
	writeShdr := func(idx int, typ uint32, addr, off, size uint64) {
		base := shoff + uint64(idx)*g.shdr
		order.PutUint32(img[base+4:], typ)
		putWord(base+g.shAddr, addr)
		putWord(base+g.shOff, off)
		putWord(base+g.shSize, size)
	}
	writeShdr(1, 3, strtabOff, strtabOff, uint64(len(strtab)))
	writeShdr(2, 6, dynOff, dynOff, dynSize)

	return img
}

// MachOOpts describes the synthetic Mach-O 64-bit little-endian image.
type MachOOpts struct {
	Deps     []string // LC_LOAD_DYLIB
	WeakDeps []string // LC_LOAD_WEAK_DYLIB
	ID       string   // LC_ID_DYLIB install name
	RPaths   []string // one LC_RPATH each
	CPU      uint32   // defaults to x86_64
}

const (
	machoCPUx8664 = 0x01000007

	lcLoadDylib     = 0xC
	lcIDDylib       = 0xD
	lcLoadWeakDylib = 0x80000018
	lcRpath         = 0x8000001C
)

// BuildMachO64 produces a single-architecture Mach-O image.
func BuildMachO64(opts MachOOpts) []byte {
	le := binary.LittleEndian
	cpu := opts.CPU
	if cpu == 0 {
		cpu = machoCPUx8664
	}

	var cmds [][]byte
	dylibCmd := func(cmd uint32, name string) []byte {
		size := align8(24 + uint64(len(name)) + 1)
		buf := make([]byte, size)
		le.PutUint32(buf, cmd)
		le.PutUint32(buf[4:], uint32(size))
		le.PutUint32(buf[8:], 24) // lc_str offset
		copy(buf[24:], name)
		return buf
	}
	if opts.ID != "" {
		cmds = append(cmds, dylibCmd(lcIDDylib, opts.ID))
	}
	for _, dep := range opts.Deps {
		cmds = append(cmds, dylibCmd(lcLoadDylib, dep))
	}
	for _, dep := range opts.WeakDeps {
		cmds = append(cmds, dylibCmd(lcLoadWeakDylib, dep))
	}
	for _, rpath := range opts.RPaths {
		size := align8(12 + uint64(len(rpath)) + 1)
		buf := make([]byte, size)
		le.PutUint32(buf, lcRpath)
		le.PutUint32(buf[4:], uint32(size))
		le.PutUint32(buf[8:], 12)
		copy(buf[12:], rpath)
		cmds = append(cmds, buf)
	}

	cmdsSize := 0
	for _, c := range cmds {
		cmdsSize += len(c)
	}

	img := make([]byte, 32+cmdsSize)
	le.PutUint32(img, 0xFEEDFACF) // MH_MAGIC_64, little-endian on disk
	le.PutUint32(img[4:], cpu)
	le.PutUint32(img[8:], 3)                 // cpusubtype
	le.PutUint32(img[12:], 6)                // filetype MH_DYLIB
	le.PutUint32(img[16:], uint32(len(cmds)))
	le.PutUint32(img[20:], uint32(cmdsSize))
	off := 32
	for _, c := range cmds {
		copy(img[off:], c)
		off += len(c)
	}
	return img
}

// FatSlice is one architecture entry of a fat container.
type FatSlice struct {
	CPU  uint32
	Data []byte
}

// BuildFat wraps slices into a fat/universal container. The arch table
// is big-endian regardless of the slices' own byte order.
func BuildFat(slices ...FatSlice) []byte {
	be := binary.BigEndian

	headerSize := uint64(8 + 20*len(slices))
	offsets := make([]uint64, len(slices))
	total := align16(headerSize)
	for i, slice := range slices {
		offsets[i] = total
		total = align16(total + uint64(len(slice.Data)))
	}

	img := make([]byte, total)
	be.PutUint32(img, 0xCAFEBABE)
	be.PutUint32(img[4:], uint32(len(slices)))
	for i, slice := range slices {
		base := 8 + 20*i
		be.PutUint32(img[base:], slice.CPU)
		be.PutUint32(img[base+4:], 3)
		be.PutUint32(img[base+8:], uint32(offsets[i]))
		be.PutUint32(img[base+12:], uint32(len(slice.Data)))
		be.PutUint32(img[base+16:], 0)
		copy(img[offsets[i]:], slice.Data)
	}
	return img
}

func joinColon(entries []string) string {
	out := ""
	for i, entry := range entries {
		if i > 0 {
			out += ":"
		}
		out += entry
	}
	return out
}

func align8(v uint64) uint64 {
	return (v + 7) &^ 7
}

func align16(v uint64) uint64 {
	return (v + 15) &^ 15
}
