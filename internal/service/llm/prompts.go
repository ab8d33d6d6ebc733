package llm

import "fmt"

// TranslationSystemPrompt frames the model as a lecture interpreter that
// answers with the translation only.
const TranslationSystemPrompt = `You are a world-class simultaneous interpreter specializing in academic lectures. Your task is to translate English lecture snippets into fluent, accurate, and professional Chinese. Your entire response must be ONLY the Chinese translation. Do not add any extra words, explanations, or punctuation outside of the translation itself.`

func TranslationUserPrompt(topic, text string) string {
	return fmt.Sprintf("The lecture topic is %q. Prioritize terminology and phrasing suitable for this academic field. Please provide a professional Chinese translation for the following English text:\n\n%q", topic, text)
}

func SummaryPrompt(topic, text string) string {
	return fmt.Sprintf("You are a highly efficient note-taking assistant for a university lecture on %q. Please summarize the key points from the following transcript for a student's review. You can expand on the points where necessary. Please use Chinese for your response. The summary should be concise, well-structured, and use **bold text** to highlight key terms.\n\nTranscript content:\n%q", topic, text)
}

// TopicTermsPrompt asks for about fifty core English terms separated by "|".
func TopicTermsPrompt(topic string) string {
	return fmt.Sprintf("You are an expert professor with deep insight across every field of study. I will give you a course topic; generate a list of about 50 of the most central, most technical English terms that are most likely to be mentioned frequently in a lecture on it. Output requirements: 1. Every term must be in English. 2. Separate terms with the \"|\" character. 3. Do not add any explanations, titles, numbering or line breaks; output a single long string separated by \"|\". The course topic is: %s", topic)
}

func ExplainPrompt(topic, word, sentence string) string {
	return fmt.Sprintf(`This is a university lecture on %q. I encountered a word and need a brief explanation.
The sentence is: %q
The word to understand is: %q

Please answer strictly in the following format, without any extra explanations or introductory phrases:
1.  **Contextual Meaning**: What does %q most likely mean in this sentence? Please explain in Chinese.
2.  **Extended Explanation**: Provide a broader explanation of the word, including other possible meanings, usage, or relevant cultural background (e.g., if it's an acronym, give the full name and explanation).`, topic, sentence, word, word)
}
