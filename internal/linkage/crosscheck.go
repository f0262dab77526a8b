package linkage

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pkglink/linkage-cli/internal/binfmt"
)

// CrossCheckingReader runs two independent Reader implementations over
// the same contract and compares their answers. A mismatch is logged as
// a warning without failing anything; the Primary (from-scratch) result
// is authoritative, since the general-purpose parsers behind Secondary
// sometimes alter semantics the resolver must not apply.
type CrossCheckingReader struct {
	Primary   Reader
	Secondary Reader
	Logger    *logrus.Entry
}

func (c *CrossCheckingReader) Read(path, arch string) (*binfmt.Info, error) {
	info, err := c.Primary.Read(path, arch)
	if err != nil {
		return info, err
	}

	alt, altErr := c.Secondary.Read(path, arch)
	if altErr != nil {
		c.debugf("cross-check reader failed for %s: %v", path, altErr)
		return info, nil
	}

	if diff := diffInfos(info, alt); diff != "" {
		c.warnf("linkage readers disagree for %s: %s", path, diff)
	}
	return info, nil
}

// diffInfos reports the disagreements between two parses of the same
// file, empty when they agree on everything the resolver consumes.
func diffInfos(a, b *binfmt.Info) string {
	var diffs []string
	if onlyA, onlyB := diffSets(a.NeededNames(), b.NeededNames()); onlyA != "" || onlyB != "" {
		diffs = append(diffs, "dependencies "+describeDiff(onlyA, onlyB))
	}
	if onlyA, onlyB := diffSets(a.RPaths.Own, b.RPaths.Own); onlyA != "" || onlyB != "" {
		diffs = append(diffs, "rpaths "+describeDiff(onlyA, onlyB))
	}
	if a.SelfName != b.SelfName {
		diffs = append(diffs, "self name "+a.SelfName+" vs "+b.SelfName)
	}
	return strings.Join(diffs, "; ")
}

func diffSets(a, b []string) (onlyA, onlyB string) {
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
	}
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var listA, listB []string
	for s := range inA {
		if !inB[s] {
			listA = append(listA, s)
		}
	}
	for s := range inB {
		if !inA[s] {
			listB = append(listB, s)
		}
	}
	sort.Strings(listA)
	sort.Strings(listB)
	return strings.Join(listA, ","), strings.Join(listB, ",")
}

func describeDiff(onlyA, onlyB string) string {
	switch {
	case onlyA != "" && onlyB != "":
		return "(raw only: " + onlyA + "; stdlib only: " + onlyB + ")"
	case onlyA != "":
		return "(raw only: " + onlyA + ")"
	default:
		return "(stdlib only: " + onlyB + ")"
	}
}

func (c *CrossCheckingReader) warnf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Warnf(format, args...)
	}
}

func (c *CrossCheckingReader) debugf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debugf(format, args...)
	}
}
