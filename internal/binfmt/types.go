package binfmt

import (
	"encoding/binary"
)

// Format identifies the container format of a binary file
type Format string

const (
	FormatELF32    Format = "ELF32"
	FormatELF64    Format = "ELF64"
	FormatMachO32  Format = "MachO32"
	FormatMachO64  Format = "MachO64"
	FormatMachOFat Format = "MachOFat"
	FormatPE       Format = "PE"
	FormatUnknown  Format = "Unknown"
)

// IsELF reports whether the format is an ELF variant
func (f Format) IsELF() bool {
	return f == FormatELF32 || f == FormatELF64
}

// IsMachO reports whether the format is a Mach-O variant, fat included
func (f Format) IsMachO() bool {
	return f == FormatMachO32 || f == FormatMachO64 || f == FormatMachOFat
}

// WordSize returns the pointer width in bytes, or 0 when not applicable
func (f Format) WordSize() int {
	switch f {
	case FormatELF32, FormatMachO32:
		return 4
	case FormatELF64, FormatMachO64:
		return 8
	}
	return 0
}

// BinaryHandle identifies one parsed file. The readers fill everything
// but RootExeDir, which the crawl stamps once it knows which executable
// anchors the chain.
type BinaryHandle struct {
	Format     Format           `json:"format"`
	ByteOrder  binary.ByteOrder `json:"-"`
	WordSize   int              `json:"word_size"`
	FatOffset  uint64           `json:"fat_offset,omitempty"`
	FatSize    uint64           `json:"fat_size,omitempty"`
	SelfDir    string           `json:"self_dir"`
	RootExeDir string           `json:"root_exe_dir"`
}

// DependencyRecord is one declared "needed library" entry.
type DependencyRecord struct {
	Name   string `json:"name"`
	SelfID bool   `json:"self_id,omitempty"` // Mach-O LC_ID_DYLIB entry
}

// RPathList holds the search directories a binary contributes itself (Own)
// and the ones inherited from the chain of parents that loaded it
// (Inherited). Inherited entries accumulate strictly in load order.
type RPathList struct {
	Own       []string `json:"own,omitempty"`
	Inherited []string `json:"inherited,omitempty"`
	// OwnTransitive is false when the entries came from ELF DT_RUNPATH,
	// which applies to direct dependencies only and breaks the chain.
	OwnTransitive bool `json:"own_transitive"`
}

// SearchList returns the directories to search for this binary's own
// dependencies, parents first.
func (r RPathList) SearchList() []string {
	if len(r.Inherited) == 0 && len(r.Own) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Inherited)+len(r.Own))
	out = append(out, r.Inherited...)
	out = append(out, r.Own...)
	return out
}

// ChildInherited returns the directories a direct dependency of this
// binary inherits. A binary that defines RUNPATH stops propagation.
func (r RPathList) ChildInherited() []string {
	if !r.OwnTransitive {
		return nil
	}
	return r.SearchList()
}

// Info is the structured dependency record produced by the readers.
type Info struct {
	Handle BinaryHandle       `json:"handle"`
	Needed []DependencyRecord `json:"needed,omitempty"`
	RPaths RPathList          `json:"rpaths"`
	Interp string             `json:"interp,omitempty"`
	// SelfName is the ELF SONAME or Mach-O install name, when present.
	// It is the binary's identity for deduplication during a crawl.
	SelfName string `json:"self_name,omitempty"`
}

// NeededNames returns the declared dependency names, self entries excluded.
func (i *Info) NeededNames() []string {
	names := make([]string, 0, len(i.Needed))
	for _, dep := range i.Needed {
		if dep.SelfID {
			continue
		}
		names = append(names, dep.Name)
	}
	return names
}
