package domain

import (
	"fmt"
	"strings"
)

// ResourceType is a request category understood by the filtering engine.
// Values use the declarativeNetRequest spelling.
type ResourceType string

const (
	ResourceMainFrame      ResourceType = "main_frame"
	ResourceSubFrame       ResourceType = "sub_frame"
	ResourceStylesheet     ResourceType = "stylesheet"
	ResourceScript         ResourceType = "script"
	ResourceImage          ResourceType = "image"
	ResourceFont           ResourceType = "font"
	ResourceObject         ResourceType = "object"
	ResourceXMLHTTPRequest ResourceType = "xmlhttprequest"
	ResourcePing           ResourceType = "ping"
	ResourceCSPReport      ResourceType = "csp_report"
	ResourceMedia          ResourceType = "media"
	ResourceWebSocket      ResourceType = "websocket"
	ResourceWebTransport   ResourceType = "webtransport"
	ResourceWebBundle      ResourceType = "webbundle"
	ResourceOther          ResourceType = "other"
)

var allResourceTypes = []ResourceType{
	ResourceMainFrame,
	ResourceSubFrame,
	ResourceStylesheet,
	ResourceScript,
	ResourceImage,
	ResourceFont,
	ResourceObject,
	ResourceXMLHTTPRequest,
	ResourcePing,
	ResourceCSPReport,
	ResourceMedia,
	ResourceWebSocket,
	ResourceWebTransport,
	ResourceWebBundle,
	ResourceOther,
}

// AllResourceTypes returns the complete resource taxonomy in a stable order.
// The returned slice is a fresh copy.
func AllResourceTypes() []ResourceType {
	out := make([]ResourceType, len(allResourceTypes))
	copy(out, allResourceTypes)
	return out
}

// IsValid reports whether t is part of the engine's taxonomy.
func (t ResourceType) IsValid() bool {
	for _, rt := range allResourceTypes {
		if rt == t {
			return true
		}
	}
	return false
}

func (t ResourceType) String() string { return string(t) }

// ParseResourceType converts a string into a ResourceType (case-insensitive).
func ParseResourceType(s string) (ResourceType, error) {
	t := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unsupported resource type: %q", s)
	}
	return t, nil
}
