package classifier

const systemPrompt = `You read git commit messages and decide whether a commit finishes a tracked task.
Task identifiers look like PROJECT-123 or TASK-07.
Reply with a single JSON object and nothing else:
{"taskId": "<task identifier or null>", "completed": <true|false>}
Use "completed": true only when the message says the task is done, fixed, resolved or closed.
If the message references no task, reply {"taskId": null, "completed": false}.`

func buildPrompt(message string) string {
	return "Commit message:\n" + message
}
