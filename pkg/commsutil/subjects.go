package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectQuery       = "cap.supervisor.v1"
	SubjectChangeEvent = "supervisor.changed"
)

// BuildChangeSubject builds the per-type change event subject, e.g.
// "supervisor.changed.cellapp".
func BuildChangeSubject(componentType string) string {
	return fmt.Sprintf("%s.%s", SubjectChangeEvent, subjectToken(componentType))
}

// BuildQuerySubject scopes the query subject to one cluster when name is set.
func BuildQuerySubject(cluster string) string {
	if cluster == "" {
		return SubjectQuery
	}
	return fmt.Sprintf("%s.%s", SubjectQuery, subjectToken(cluster))
}

// subjectToken keeps a value inside one subject token.
func subjectToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
