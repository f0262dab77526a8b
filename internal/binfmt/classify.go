package binfmt

import (
	"encoding/binary"
	"os"
	"path/filepath"
)

// Magic numbers, big-endian interpretation of the leading bytes.
const (
	elfMagic = 0x7F454C46

	machoMagic32    = 0xFEEDFACE // big-endian 32-bit
	machoCigam32    = 0xCEFAEDFE // little-endian 32-bit
	machoMagic64    = 0xFEEDFACF // big-endian 64-bit
	machoCigam64    = 0xCFFAEDFE // little-endian 64-bit
	machoFatMagic   = 0xCAFEBABE
	peDOSSignature  = 0x4D5A // "MZ"
	peLfanewOffset  = 0x3C
	peSignatureSize = 4
)

// ClassifyBytes inspects the leading magic bytes of data and returns the
// container format. It never fails; anything unrecognized or too short is
// FormatUnknown.
func ClassifyBytes(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}
	magic := binary.BigEndian.Uint32(data)

	switch magic {
	case machoMagic32, machoCigam32:
		return FormatMachO32
	case machoMagic64, machoCigam64:
		return FormatMachO64
	case machoFatMagic:
		return FormatMachOFat
	}

	if magic == elfMagic {
		if len(data) < 5 {
			return FormatUnknown
		}
		switch data[4] {
		case 1:
			return FormatELF32
		case 2:
			return FormatELF64
		}
		return FormatUnknown
	}

	// PE needs the two-stage check: DOS stub first, then the PE
	// signature at the offset the stub points at. MZ alone is not
	// enough, plenty of plain DOS executables carry it.
	if binary.BigEndian.Uint16(data) == peDOSSignature {
		if len(data) < peLfanewOffset+4 {
			return FormatUnknown
		}
		lfanew := binary.LittleEndian.Uint32(data[peLfanewOffset:])
		end := uint64(lfanew) + peSignatureSize
		if end > uint64(len(data)) {
			return FormatUnknown
		}
		sig := data[lfanew:end]
		if sig[0] == 'P' && sig[1] == 'E' && sig[2] == 0 && sig[3] == 0 {
			return FormatPE
		}
	}

	return FormatUnknown
}

// Classify detects the format of the file at path, resolving symlinks
// first. Truncated, empty, unreadable, or non-regular files classify as
// FormatUnknown rather than erroring.
func Classify(path string) Format {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return FormatUnknown
	}
	return classifyFile(resolved)
}

// ClassifyNoFollow behaves like Classify but does not resolve symlinks;
// a symlink itself classifies as FormatUnknown. Used when enumerating a
// package's own files, where a link must not be counted as its target.
func ClassifyNoFollow(path string) Format {
	fi, err := os.Lstat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return FormatUnknown
	}
	return classifyFile(path)
}

func classifyFile(path string) Format {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return FormatUnknown
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown
	}
	defer f.Close()

	head := make([]byte, 8)
	n, _ := f.ReadAt(head, 0)
	head = head[:n]
	if len(head) < 4 {
		return FormatUnknown
	}

	// PE classification needs bytes beyond the leading eight; fetch the
	// signature window only when the DOS stub is present.
	if binary.BigEndian.Uint16(head) == peDOSSignature {
		var lfanewBuf [4]byte
		if _, err := f.ReadAt(lfanewBuf[:], peLfanewOffset); err != nil {
			return FormatUnknown
		}
		lfanew := binary.LittleEndian.Uint32(lfanewBuf[:])
		var sig [peSignatureSize]byte
		if _, err := f.ReadAt(sig[:], int64(lfanew)); err != nil {
			return FormatUnknown
		}
		if sig[0] == 'P' && sig[1] == 'E' && sig[2] == 0 && sig[3] == 0 {
			return FormatPE
		}
		return FormatUnknown
	}

	return ClassifyBytes(head)
}
