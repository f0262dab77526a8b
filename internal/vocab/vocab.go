// Package vocab defines the shared relocatable-path token set and the
// per-format substitution tables between each platform's native tokens
// and the internal ones. ELF binaries speak $ORIGIN/$LIB, Mach-O speaks
// @rpath/@loader_path/@executable_path; everything downstream of the
// readers works on the internal set only.
package vocab

import (
	"strings"
)

// Internal token set.
const (
	TokenRPath   = "$RPATH"
	TokenSelfDir = "$SELFDIR"
	TokenExeDir  = "$EXEDIR"
	TokenLib     = "$LIB"
)

// Native ELF tokens. The brace forms must be replaced before the bare
// forms, else "${ORIGIN}" decays into "$SELFDIR}".
var elfToInternal = []struct{ from, to string }{
	{"${ORIGIN}", TokenSelfDir},
	{"$ORIGIN", TokenSelfDir},
	{"${LIB}", TokenLib},
	{"$LIB", TokenLib},
}

var internalToELF = []struct{ from, to string }{
	{TokenSelfDir, "$ORIGIN"},
	{TokenLib, "$LIB"},
}

var machoToInternal = []struct{ from, to string }{
	{"@rpath", TokenRPath},
	{"@loader_path", TokenSelfDir},
	{"@executable_path", TokenExeDir},
}

var internalToMachO = []struct{ from, to string }{
	{TokenRPath, "@rpath"},
	{TokenSelfDir, "@loader_path"},
	{TokenExeDir, "@executable_path"},
}

func apply(s string, table []struct{ from, to string }) string {
	for _, sub := range table {
		s = strings.ReplaceAll(s, sub.from, sub.to)
	}
	return s
}

// LibDirName returns the library directory name the dynamic linker
// substitutes for $LIB, chosen from the binary's pointer width.
func LibDirName(wordSize int) string {
	if wordSize == 8 {
		return "lib64"
	}
	return "lib"
}

// NormalizeELF rewrites native ELF tokens in s to internal ones. $LIB is
// substituted with the concrete library directory name immediately since
// its value depends only on the binary's word size.
func NormalizeELF(s string, wordSize int) string {
	s = apply(s, elfToInternal)
	return strings.ReplaceAll(s, TokenLib, LibDirName(wordSize))
}

// DenormalizeELF rewrites internal tokens in s back to native ELF form.
func DenormalizeELF(s string) string {
	return apply(s, internalToELF)
}

// NormalizeMachO rewrites native Mach-O tokens in s to internal ones.
func NormalizeMachO(s string) string {
	return apply(s, machoToInternal)
}

// DenormalizeMachO rewrites internal tokens in s back to native Mach-O form.
func DenormalizeMachO(s string) string {
	return apply(s, internalToMachO)
}

// Substitute resolves the directory tokens in s against concrete
// directories. $RPATH is left alone; expanding it needs a search, which
// is the resolver's job.
func Substitute(s, selfDir, exeDir string) string {
	if selfDir != "" {
		s = strings.ReplaceAll(s, TokenSelfDir, selfDir)
	}
	if exeDir != "" {
		s = strings.ReplaceAll(s, TokenExeDir, exeDir)
	}
	return s
}

// HasToken reports whether s contains any internal token.
func HasToken(s string) bool {
	return strings.Contains(s, TokenRPath) ||
		strings.Contains(s, TokenSelfDir) ||
		strings.Contains(s, TokenExeDir) ||
		strings.Contains(s, TokenLib)
}
