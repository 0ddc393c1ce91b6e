package session

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

// group operations require an open connection for the session.

func (m *Manager) groupClient(sessionID string) (*whatsmeow.Client, error) {
	h, ok := m.registry.Get(sessionID)
	if !ok || !h.IsConnected() {
		return nil, fmt.Errorf("connection for session %s not found", sessionID)
	}
	return h.Client, nil
}

// CreateGroup creates a group with the given name and participants.
func (m *Manager) CreateGroup(ctx context.Context, sessionID, name string, participants []string) (*types.GroupInfo, error) {
	client, err := m.groupClient(sessionID)
	if err != nil {
		return nil, err
	}
	jids, err := parseParticipants(participants)
	if err != nil {
		return nil, err
	}
	info, err := client.CreateGroup(ctx, whatsmeow.ReqCreateGroup{Name: name, Participants: jids})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return info, nil
}

// GroupInfo fetches metadata for a group.
func (m *Manager) GroupInfo(ctx context.Context, sessionID, groupID string) (*types.GroupInfo, error) {
	client, err := m.groupClient(sessionID)
	if err != nil {
		return nil, err
	}
	jid, err := types.ParseJID(groupID)
	if err != nil {
		return nil, fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	return client.GetGroupInfo(ctx, jid)
}

// SetGroupSubject renames a group.
func (m *Manager) SetGroupSubject(ctx context.Context, sessionID, groupID, subject string) error {
	client, err := m.groupClient(sessionID)
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(groupID)
	if err != nil {
		return fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	return client.SetGroupName(ctx, jid, subject)
}

// UpdateParticipants adds or removes group members.
func (m *Manager) UpdateParticipants(ctx context.Context, sessionID, groupID string, participants []string, add bool) error {
	client, err := m.groupClient(sessionID)
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(groupID)
	if err != nil {
		return fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	jids, err := parseParticipants(participants)
	if err != nil {
		return err
	}
	action := whatsmeow.ParticipantChangeAdd
	if !add {
		action = whatsmeow.ParticipantChangeRemove
	}
	_, err = client.UpdateGroupParticipants(ctx, jid, jids, action)
	return err
}

// LeaveGroup leaves a group.
func (m *Manager) LeaveGroup(ctx context.Context, sessionID, groupID string) error {
	client, err := m.groupClient(sessionID)
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(groupID)
	if err != nil {
		return fmt.Errorf("invalid group id %q: %w", groupID, err)
	}
	return client.LeaveGroup(ctx, jid)
}

func parseParticipants(participants []string) ([]types.JID, error) {
	jids := make([]types.JID, 0, len(participants))
	for _, p := range participants {
		jid, err := ParseChatJID(p)
		if err != nil {
			return nil, err
		}
		jids = append(jids, jid)
	}
	return jids, nil
}
