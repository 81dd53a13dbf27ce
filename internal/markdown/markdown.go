package markdown

import (
	"path/filepath"
	"strings"
)

// DefaultFile is the fallback document name, directly under the root.
const DefaultFile = "chainlit.md"

// DefaultMarkdown is written to DefaultFile by Init.
const DefaultMarkdown = `# Welcome to Chainlit! 🚀🤖

Hi there, Developer! 👋 We're excited to have you on board. Chainlit is a powerful tool designed to help you prototype, debug and share applications built on top of LLMs.

## Useful Links 🔗

- **Documentation:** Get started with our comprehensive [Chainlit Documentation](https://docs.chainlit.io) 📚
- **Discord Community:** Join our friendly [Chainlit Discord](https://discord.gg/k73SQ3FyUh) to ask questions, share your projects, and connect with other developers! 💬

We can't wait to see what you create with Chainlit! Happy coding! 💻😊

## Welcome screen

To modify the welcome screen, edit the ` + "`chainlit.md`" + ` file at the root of your project. If you do not want a welcome screen, just leave this file empty.
`

// Tier says which candidate a document came from.
type Tier int

const (
	TierSpecific Tier = iota
	TierGeneral
	TierDefault
)

func (t Tier) String() string {
	switch t {
	case TierSpecific:
		return "specific"
	case TierGeneral:
		return "general"
	case TierDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Candidate is one path the resolver may select.
type Candidate struct {
	Path string
	Tier Tier
}

// Document is a resolved and loaded welcome document.
type Document struct {
	Content string
	Path    string
	Tier    Tier
}

// GeneralLanguage returns the part of tag before the first "-", or tag
// itself when it has none. "zh-Hant-TW" gives "zh"; "" gives "".
func GeneralLanguage(tag string) string {
	general, _, _ := strings.Cut(tag, "-")
	return general
}

// FileName returns the document name for a language tag.
func FileName(tag string) string {
	return "chainlit_" + tag + ".md"
}

// Candidates returns the three paths for language under root in priority
// order. The language-derived names are joined without
// cleaning so that ".." and symlinks are judged by the containment check
// rather than removed lexically here.
func Candidates(root, language string) [3]Candidate {
	return [3]Candidate{
		{Path: join(root, FileName(language)), Tier: TierSpecific},
		{Path: join(root, FileName(GeneralLanguage(language))), Tier: TierGeneral},
		{Path: filepath.Join(root, DefaultFile), Tier: TierDefault},
	}
}

func join(root, name string) string {
	switch {
	case root == "":
		return name
	case strings.HasSuffix(root, string(filepath.Separator)):
		return root + name
	default:
		return root + string(filepath.Separator) + name
	}
}
