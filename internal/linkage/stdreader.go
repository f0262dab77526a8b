package linkage

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/pkglink/linkage-cli/internal/binfmt"
	"github.com/pkglink/linkage-cli/internal/vocab"
)

// StdlibReader implements Reader on top of the general-purpose debug/elf,
// debug/macho and debug/pe parsers. It exists for cross-validation of the
// from-scratch RawReader; their abstractions occasionally alter semantics
// (debug/macho does not surface LC_ID_DYLIB at all), which is exactly why
// RawReader stays authoritative.
type StdlibReader struct{}

func (StdlibReader) Read(path, arch string) (*binfmt.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary file: %w", err)
	}

	var info *binfmt.Info
	format := binfmt.ClassifyBytes(data)
	switch {
	case format.IsELF():
		info = readELFStdlib(data)
	case format.IsMachO():
		info = readMachOStdlib(data, arch)
	case format == binfmt.FormatPE:
		info = readPE(data)
	default:
		info = &binfmt.Info{
			Handle: binfmt.BinaryHandle{Format: binfmt.FormatUnknown},
			RPaths: binfmt.RPathList{OwnTransitive: true},
		}
	}

	finishHandle(info, path)
	return info, nil
}

func readELFStdlib(data []byte) *binfmt.Info {
	info := &binfmt.Info{
		Handle: binfmt.BinaryHandle{Format: binfmt.FormatUnknown},
		RPaths: binfmt.RPathList{OwnTransitive: true},
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return info
	}
	defer f.Close()

	switch f.Class {
	case elf.ELFCLASS32:
		info.Handle.Format = binfmt.FormatELF32
		info.Handle.WordSize = 4
	case elf.ELFCLASS64:
		info.Handle.Format = binfmt.FormatELF64
		info.Handle.WordSize = 8
	}
	info.Handle.ByteOrder = f.ByteOrder

	if libs, err := f.ImportedLibraries(); err == nil {
		for _, lib := range libs {
			info.Needed = append(info.Needed, binfmt.DependencyRecord{
				Name: vocab.NormalizeELF(lib, info.Handle.WordSize),
			})
		}
	}

	if sonames, err := f.DynString(elf.DT_SONAME); err == nil && len(sonames) > 0 {
		info.SelfName = sonames[0]
	}

	runpaths, _ := f.DynString(elf.DT_RUNPATH)
	rpaths, _ := f.DynString(elf.DT_RPATH)
	raw := rpaths
	if len(runpaths) > 0 {
		raw = runpaths
		info.RPaths.OwnTransitive = false
	}
	for _, joined := range raw {
		for _, entry := range strings.Split(joined, ":") {
			entry = strings.TrimRight(entry, "/")
			if entry == "" {
				continue
			}
			info.RPaths.Own = append(info.RPaths.Own,
				vocab.NormalizeELF(entry, info.Handle.WordSize))
		}
	}

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			buf := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(buf, 0); err == nil {
				info.Interp = strings.TrimRight(string(buf), "\x00")
			}
			break
		}
	}

	return info
}

func readMachOStdlib(data []byte, arch string) *binfmt.Info {
	info := &binfmt.Info{
		Handle: binfmt.BinaryHandle{Format: binfmt.FormatUnknown},
		RPaths: binfmt.RPathList{OwnTransitive: true},
	}

	f := openMachOStdlib(data, arch)
	if f == nil {
		return info
	}
	defer f.Close()

	if f.Magic == macho.Magic64 {
		info.Handle.Format = binfmt.FormatMachO64
		info.Handle.WordSize = 8
	} else {
		info.Handle.Format = binfmt.FormatMachO32
		info.Handle.WordSize = 4
	}
	info.Handle.ByteOrder = f.ByteOrder

	for _, load := range f.Loads {
		switch cmd := load.(type) {
		case *macho.Dylib:
			info.Needed = append(info.Needed, binfmt.DependencyRecord{
				Name: vocab.NormalizeMachO(cmd.Name),
			})
		case *macho.Rpath:
			entry := strings.TrimRight(cmd.Path, "/")
			if entry != "" {
				info.RPaths.Own = append(info.RPaths.Own,
					vocab.NormalizeMachO(entry))
			}
		case macho.LoadBytes:
			// debug/macho leaves LC_ID_DYLIB as raw bytes; dig the
			// install name out ourselves.
			if name, ok := idDylibName(cmd, f.ByteOrder); ok {
				info.SelfName = name
				info.Needed = append(info.Needed, binfmt.DependencyRecord{
					Name:   vocab.NormalizeMachO(name),
					SelfID: true,
				})
			}
		}
	}

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

	return info
}

// openMachOStdlib opens a thin file directly, or picks the matching slice
// of a fat container.
func openMachOStdlib(data []byte, arch string) *macho.File {
	if binfmt.ClassifyBytes(data) != binfmt.FormatMachOFat {
		f, err := macho.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil
		}
		if arch != "" && arch != "any" {
			want, have := binfmt.CPUTypeForArch(arch)
			if !have || uint32(f.Cpu) != want {
				f.Close()
				return nil
			}
		}
		return f
	}

	ff, err := macho.NewFatFile(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	if arch == "" || arch == "any" {
		if len(ff.Arches) == 0 {
			return nil
		}
		return ff.Arches[0].File
	}
	want, have := binfmt.CPUTypeForArch(arch)
	if !have {
		return nil
	}
	for _, slice := range ff.Arches {
		if uint32(slice.Cpu) == want {
			return slice.File
		}
	}
	return nil
}

const lcIDDylib = 0xD

// idDylibName extracts the install name from a raw LC_ID_DYLIB command.
func idDylibName(raw macho.LoadBytes, order binary.ByteOrder) (string, bool) {
	if len(raw) < 12 || order.Uint32(raw) != lcIDDylib {
		return "", false
	}
	nameOff := order.Uint32(raw[8:])
	if nameOff >= uint32(len(raw)) {
		return "", false
	}
	name := raw[nameOff:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) == 0 {
		return "", false
	}
	return string(name), true
}

// readPE lists the DLLs a PE image imports. debug/pe never implemented
// ImportedLibraries, so the names are recovered from the imported-symbol
// list, which carries them as "symbol:DLL.dll" pairs.
func readPE(data []byte) *binfmt.Info {
	info := &binfmt.Info{
		Handle: binfmt.BinaryHandle{
			Format:    binfmt.FormatPE,
			ByteOrder: binary.LittleEndian,
		},
		RPaths: binfmt.RPathList{OwnTransitive: true},
	}

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return info
	}
	defer f.Close()

	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_ARM64:
		info.Handle.WordSize = 8
	default:
		info.Handle.WordSize = 4
	}

	syms, err := f.ImportedSymbols()
	if err != nil {
		return info
	}
	seen := make(map[string]bool)
	for _, sym := range syms {
		idx := strings.LastIndex(sym, ":")
		if idx < 0 {
			continue
		}
		dll := sym[idx+1:]
		if dll == "" || seen[dll] {
			continue
		}
		seen[dll] = true
		info.Needed = append(info.Needed, binfmt.DependencyRecord{Name: dll})
	}

	return info
}
