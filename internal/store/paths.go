package store

import "fmt"

// Path layout of the shared store. Projects, people and templates are
// namespaced per user; delivery jobs live under a root-level whatsapp
// namespace; agent records and their command slots are process-wide.

func ProjectsPrefix(uid string) string {
	return fmt.Sprintf("users/%s/send/projects/", uid)
}

func ProjectPath(uid, projectID string) string {
	return ProjectsPrefix(uid) + projectID
}

func PeoplePrefix(uid, eventID string) string {
	return fmt.Sprintf("users/%s/events/%s/people/", uid, eventID)
}

func PersonPath(uid, eventID, personID string) string {
	return PeoplePrefix(uid, eventID) + personID
}

func TemplatesPrefix(uid string) string {
	return fmt.Sprintf("users/%s/templates/", uid)
}

func TemplatePath(uid, templateID string) string {
	return TemplatesPrefix(uid) + templateID
}

func JobsPrefix(uid, eventID string) string {
	return fmt.Sprintf("whatsapp/%s/%s/", uid, eventID)
}

func JobPath(uid, eventID, jobID string) string {
	return JobsPrefix(uid, eventID) + jobID
}

func AgentsPrefix() string {
	return "servers/"
}

func AgentPath(agentID string) string {
	return AgentsPrefix() + agentID
}

// CommandPath is the single-slot command path for an agent: each
// write replaces the previous pending command.
func CommandPath(agentID string) string {
	return "serverCommands/" + agentID
}

func ThemeModePath() string {
	return "ui/themeMode"
}
