package session

import (
	"path"
	"strings"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

const noDetails = "No additional details."

var fenceLanguages = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".json": "json",
	".html": "html",
	".css":  "css",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".sh":   "bash",
	".sql":  "sql",
}

// BuildFixPrompt embeds every file and the problem report into a repair
// prompt for the generator. Files appear in sorted path order.
func BuildFixPrompt(files models.FileMap, p *models.Problem) string {
	var b strings.Builder

	b.WriteString("The application ran into a problem. Below are the current code of the application and the error report.\n\n")

	b.WriteString("--- CURRENT CODE ---\n")
	for _, name := range files.Keys() {
		b.WriteString("## File: ")
		b.WriteString(name)
		b.WriteString("\n```")
		b.WriteString(fenceLanguage(name))
		b.WriteString("\n")
		b.WriteString(files[name])
		if !strings.HasSuffix(files[name], "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}

	b.WriteString("--- ERROR LOGS ---\n")
	if p != nil {
		details := strings.TrimSpace(p.Details)
		if details == "" {
			details = noDetails
		}
		b.WriteString("Problem type: " + p.Type + "\n")
		b.WriteString("Message: " + p.Message + "\n")
		b.WriteString("Details: " + details + "\n")
	}

	b.WriteString("\nAnalyze this information and fix the problem. ")
	b.WriteString("Return the complete set of project files, corrected, in the expected JSON format.\n")
	return b.String()
}

func fenceLanguage(name string) string {
	if lang, ok := fenceLanguages[strings.ToLower(path.Ext(name))]; ok {
		return lang
	}
	return "python"
}
