package manifest

import "strings"

// Separator joins namespace segments in qualified class names.
const Separator = "::"

// Qualify prefixes name with namespace unless name is already qualified
// or namespace is empty.
func Qualify(namespace, name string) string {
	if namespace == "" || strings.Contains(name, Separator) {
		return name
	}
	return namespace + Separator + name
}

// Split separates a qualified name into its namespace and local name.
// "Zoo::Dog" -> ("Zoo", "Dog"), "Dog" -> ("", "Dog").
func Split(name string) (namespace, local string) {
	idx := strings.LastIndex(name, Separator)
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+len(Separator):]
}

// candidates lists the names a reference made from scope may denote, most
// local first: "Dog" seen from "Zoo::Pets" tries Zoo::Pets::Dog, Zoo::Dog,
// then Dog.
func candidates(scope, ref string) []string {
	if strings.Contains(ref, Separator) {
		return []string{ref}
	}
	var result []string
	for scope != "" {
		result = append(result, scope+Separator+ref)
		scope, _ = Split(scope)
	}
	return append(result, ref)
}
