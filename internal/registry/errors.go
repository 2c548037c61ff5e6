package registry

import (
	"fmt"
	"strings"
)

// Load issue codes (E200-E299)
const (
	ErrDecode             = "E200" // document is not valid YAML/JSON
	ErrMetaSchema         = "E201" // document does not satisfy #OperationCard
	ErrDuplicateID        = "E202" // capability_id already defined
	ErrRouteNotConfigured = "E203" // routing names a route the card does not configure
	ErrGraphQLDocument    = "E204" // document missing, unreadable or unparseable
	ErrResolution         = "E205" // resolution spec inconsistent with its documents
	ErrInjectSource       = "E206" // inject spec missing fields its source needs
	ErrComposite          = "E207" // composite step cannot be built
	ErrSchemaCompile      = "E208" // input/output schema does not compile
	ErrCLITemplate        = "E209" // cli args template does not parse
	ErrNoCards            = "E210" // no card documents found
)

// Issue is one problem found while loading cards.
type Issue struct {
	Code         string `json:"code"`
	File         string `json:"file,omitempty"`
	CapabilityID string `json:"capability_id,omitempty"`
	Field        string `json:"field,omitempty"`
	Message      string `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", i.Code)
	if i.File != "" {
		b.WriteString(i.File)
		b.WriteString(": ")
	}
	if i.CapabilityID != "" {
		b.WriteString(i.CapabilityID)
		b.WriteString(": ")
	}
	if i.Field != "" {
		b.WriteString(i.Field)
		b.WriteString(": ")
	}
	b.WriteString(i.Message)
	return b.String()
}

// LoadError aborts Load and lists every issue found.
type LoadError struct {
	Issues []Issue
}

func (e *LoadError) Error() string {
	if len(e.Issues) == 1 {
		return "load cards: " + e.Issues[0].String()
	}
	lines := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		lines[i] = "  " + is.String()
	}
	return fmt.Sprintf("load cards: %d issues:\n%s", len(e.Issues), strings.Join(lines, "\n"))
}
