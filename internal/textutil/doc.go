// Package textutil provides filename sanitization and display-label helpers.
//
// Remote titles flow through SanitizeFileName before they become path
// components, keeping traversal sequences and filesystem-invalid characters
// out of output paths.
package textutil
