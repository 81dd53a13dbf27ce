// Package markdown resolves the project's welcome document.
//
// A project root holds chainlit.md plus optional translations named
// chainlit_{tag}.md. For a language tag such as "fr-CA" the resolver tries
// chainlit_fr-CA.md, then chainlit_fr.md, then chainlit.md, and returns the
// first one that exists. Language-derived names are accepted only when they
// resolve inside the root; the default file name is fixed and is not
// re-checked.
//
// Init writes chainlit.md with DefaultMarkdown when the project has none.
// Nothing is cached: every call reads the filesystem, so edits on disk are
// visible on the next request.
package markdown
