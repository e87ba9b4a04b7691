package storage

import "context"

// Directory resolves membership questions for the scheduling engine without
// exposing the full group/project repositories to it.
type Directory struct {
	groups   *GroupRepository
	projects *ProjectRepository
}

func NewDirectory(groups *GroupRepository, projects *ProjectRepository) *Directory {
	return &Directory{groups: groups, projects: projects}
}

func (d *Directory) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return d.groups.Members(ctx, groupID)
}

func (d *Directory) ProjectParticipants(ctx context.Context, projectID string) ([]string, error) {
	return d.projects.Participants(ctx, projectID)
}
