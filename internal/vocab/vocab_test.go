package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeELF(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wordSize int
		want     string
	}{
		{"origin", "$ORIGIN/../lib", 8, "$SELFDIR/../lib"},
		{"origin braces", "${ORIGIN}/lib", 8, "$SELFDIR/lib"},
		{"lib 64", "/opt/$LIB", 8, "/opt/lib64"},
		{"lib 32", "/opt/$LIB", 4, "/opt/lib"},
		{"lib braces", "/opt/${LIB}/extra", 4, "/opt/lib/extra"},
		{"plain", "/usr/lib", 8, "/usr/lib"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeELF(tt.in, tt.wordSize))
		})
	}
}

func TestNormalizeMachO(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"rpath", "@rpath/libfoo.dylib", "$RPATH/libfoo.dylib"},
		{"loader path", "@loader_path/../lib", "$SELFDIR/../lib"},
		{"executable path", "@executable_path/../Frameworks", "$EXEDIR/../Frameworks"},
		{"plain", "/usr/lib/libSystem.B.dylib", "/usr/lib/libSystem.B.dylib"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMachO(tt.in))
		})
	}
}

func TestRoundTripIdentity(t *testing.T) {
	// Native -> internal -> native is the identity for paths with zero
	// or one token occurrence.
	elfPaths := []string{"$ORIGIN/../lib", "/usr/lib", "$ORIGIN"}
	for _, p := range elfPaths {
		assert.Equal(t, p, DenormalizeELF(NormalizeELF(p, 0)), "elf path %q", p)
	}

	machoPaths := []string{
		"@rpath/libx.dylib",
		"@loader_path/../lib/liby.dylib",
		"@executable_path/libz.dylib",
		"/usr/lib/libSystem.B.dylib",
	}
	for _, p := range machoPaths {
		assert.Equal(t, p, DenormalizeMachO(NormalizeMachO(p)), "macho path %q", p)
	}

	// And internal -> native -> internal likewise.
	internal := []string{"$RPATH/liba.dylib", "$SELFDIR/lib", "$EXEDIR/.."}
	for _, p := range internal {
		assert.Equal(t, p, NormalizeMachO(DenormalizeMachO(p)), "internal %q", p)
	}
}

func TestSubstitute(t *testing.T) {
	assert.Equal(t, "/pkg/bin/../lib", Substitute("$SELFDIR/../lib", "/pkg/bin", "/pkg/bin"))
	assert.Equal(t, "/root/app/Frameworks", Substitute("$EXEDIR/Frameworks", "/other", "/root/app"))
	// $RPATH is the resolver's job, substitution leaves it alone.
	assert.Equal(t, "$RPATH/libx.dylib", Substitute("$RPATH/libx.dylib", "/a", "/b"))
	// Empty directories leave their token in place.
	assert.Equal(t, "$SELFDIR/lib", Substitute("$SELFDIR/lib", "", "/b"))
}

func TestHasToken(t *testing.T) {
	assert.True(t, HasToken("$RPATH/x"))
	assert.True(t, HasToken("a/$SELFDIR/b"))
	assert.False(t, HasToken("/usr/lib/libc.so.6"))
}
