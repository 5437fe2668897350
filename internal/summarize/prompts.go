package summarize

import "fmt"

const (
	NoSpeechSummary = "No speech detected."
	NoSpeechOutline = "No lecture outline available."
)

func chunkPrompt(language string, idx int, text string) string {
	return fmt.Sprintf("You are an editor of technical lecture notes. Write dense notes for this fragment: "+
		"6-10 substantive bullet points, no filler and no generic phrases. Every bullet must carry meaning "+
		"(what exactly, why, consequences, an example). Keep the specifics: services, parameters, limits, "+
		"risks, steps, decisions. Write strictly in %s. Format: markdown list.\n\n"+
		"Chunk #%d:\n%s", language, idx, text)
}

func summaryPrompt(language, merged string) string {
	return fmt.Sprintf("Write a final summary from the partial notes below (1-2 paragraphs). "+
		"Only the key meaning, without repetition or introductory phrases. "+
		"Write strictly in %s.\n\n%s", language, merged)
}

func outlinePrompt(language, merged string) string {
	return fmt.Sprintf("Build a structured lecture outline from the partial notes below. "+
		"It must be substantive material, not a table of contents. Requirements:\n"+
		"1) Markdown format.\n"+
		"2) Heading: '# <Topic> - Brief notes'.\n"+
		"3) Then 5-9 sections with '##' headings.\n"+
		"4) Each section has 3-6 bullets with factual substance (no generic phrases).\n"+
		"5) Include definitions, why it matters, practical steps, risks and mistakes, limits, examples.\n"+
		"6) Avoid empty wording such as 'is discussed' or 'is considered'.\n"+
		"7) If there is a scenario or case study, give it its own section with conclusions.\n"+
		"8) Write strictly in %s.\n\n%s", language, merged)
}
