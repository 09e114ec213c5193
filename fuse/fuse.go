package fuse

import (
	"fmt"
	"strings"

	"github.com/hupe1980/infermesh/core"
)

// DefaultFuser is a core.Fuser that leads with the primary text and
// appends labelled expert sections. With no experts it returns the
// primary text verbatim; with a failed primary it fuses from experts
// alone, so a request can still succeed on fallback output.
type DefaultFuser struct {
	includeExperts bool
	sectionHeader  string
}

// DefaultFuserOptions configures a DefaultFuser.
type DefaultFuserOptions struct {
	// IncludeExperts appends expert sections below the primary answer.
	// When false, experts only serve as a substitute for a failed primary.
	IncludeExperts bool
	// SectionHeader formats expert section titles; it receives the agent
	// name via fmt.Sprintf.
	SectionHeader string
}

// NewDefaultFuser constructs a fuser that includes expert sections.
func NewDefaultFuser(optFns ...func(o *DefaultFuserOptions)) *DefaultFuser {
	opts := DefaultFuserOptions{IncludeExperts: true, SectionHeader: "\n\n--- %s ---\n"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DefaultFuser{includeExperts: opts.IncludeExperts, sectionHeader: opts.SectionHeader}
}

// Fuse implements core.Fuser. It never fails on an empty expert list and
// only errors when no input carries any text at all.
func (f *DefaultFuser) Fuse(in core.FuseInput) (string, error) {
	var b strings.Builder

	experts := in.Experts
	if in.Primary.Succeeded() {
		b.WriteString(in.Primary.Result)
	} else if len(experts) > 0 {
		// Fallback-only fusion: promote the first expert to the lead answer.
		b.WriteString(experts[0].Result)
		experts = experts[1:]
	} else {
		return "", fmt.Errorf("fuse: no successful results to fuse")
	}

	if f.includeExperts {
		for _, ex := range experts {
			if !ex.Succeeded() || strings.TrimSpace(ex.Result) == "" {
				continue
			}
			name := ex.AgentName
			if name == "" {
				name = ex.ModelKey
			}
			b.WriteString(fmt.Sprintf(f.sectionHeader, name))
			b.WriteString(ex.Result)
		}
	}

	return b.String(), nil
}
