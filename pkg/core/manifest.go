package core

import (
	"fmt"
	"strings"
)

// KeyFromContent derives the resource identity from a parsed document.
func KeyFromContent(content map[string]any) (ResourceKey, error) {
	kind, _ := content["kind"].(string)
	if kind == "" {
		return ResourceKey{}, fmt.Errorf("document has no kind")
	}
	metadata, _ := content["metadata"].(map[string]any)
	name, _ := metadata["name"].(string)
	if name == "" {
		return ResourceKey{}, fmt.Errorf("document %s has no metadata.name", kind)
	}
	namespace, _ := metadata["namespace"].(string)
	return ResourceKey{Kind: kind, Namespace: namespace, Name: name}, nil
}

// IsApplicationDeclaration reports whether a document declares a child
// Application of this engine's API group.
func IsApplicationDeclaration(content map[string]any) bool {
	kind, _ := content["kind"].(string)
	if kind != KindApplication {
		return false
	}
	apiVersion, _ := content["apiVersion"].(string)
	return strings.HasPrefix(apiVersion, Group+"/")
}

// DeepCopyContent copies a parsed document so transformations never alias the
// caller's maps. Values are limited to what YAML/JSON decoding produces.
func DeepCopyContent(content map[string]any) map[string]any {
	if content == nil {
		return nil
	}
	copied := make(map[string]any, len(content))
	for key, value := range content {
		copied[key] = deepCopyValue(value)
	}
	return copied
}

func deepCopyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return DeepCopyContent(typed)
	case []any:
		copied := make([]any, len(typed))
		for index, element := range typed {
			copied[index] = deepCopyValue(element)
		}
		return copied
	default:
		return typed
	}
}

// ensureMap returns content[field] as a map, creating it when absent.
func ensureMap(content map[string]any, field string) map[string]any {
	if existing, ok := content[field].(map[string]any); ok {
		return existing
	}
	created := map[string]any{}
	content[field] = created
	return created
}
