package webui

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/harunnryd/archivist/internal/naming"
)

// FindKnowledgeFile returns the collection file whose name carries shortID,
// or nil when there is none.
func (c *Client) FindKnowledgeFile(ctx context.Context, collectionID string, shortID string) (*FileResponse, error) {
	if shortID == "" {
		return nil, nil
	}
	kb, err := c.GetKnowledge(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	for i := range kb.Files {
		f := kb.Files[i]
		for _, name := range []string{f.Filename, f.Meta.Name} {
			if id, ok := naming.ParseShortID(name); ok && id == shortID {
				return &f, nil
			}
		}
	}
	return nil, nil
}

// AddToKnowledge links an uploaded file into a collection. When the
// collection already holds a file for the same conversation, that file's
// content is replaced and re-indexed instead, and the fresh upload is deleted.
// If the update path fails the upload is added as a new file.
func (c *Client) AddToKnowledge(ctx context.Context, fileID, collectionID, filename, sourcePath string) (LinkAction, error) {
	if shortID, ok := naming.ParseShortID(filename); ok {
		existing, err := c.FindKnowledgeFile(ctx, collectionID, shortID)
		if err != nil {
			slog.Warn("Could not list knowledge files, adding as new", "knowledge_id", collectionID, "error", err)
		}
		if existing != nil && existing.ID != "" && existing.ID != fileID {
			if err := c.replaceContent(ctx, existing.ID, collectionID, sourcePath); err == nil {
				if err := c.DeleteFile(ctx, fileID); err != nil {
					slog.Warn("Could not delete superseded upload", "file_id", fileID, "error", err)
				}
				return LinkUpdated, nil
			} else {
				slog.Warn("Update of existing knowledge file failed, adding as new",
					"knowledge_id", collectionID, "file_id", existing.ID, "error", err)
			}
		}
	}

	if err := c.addFile(ctx, fileID, collectionID); err != nil {
		return "", err
	}
	return LinkAdded, nil
}

func (c *Client) replaceContent(ctx context.Context, fileID, collectionID, sourcePath string) error {
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", sourcePath, err)
	}
	if err := c.UpdateFileContent(ctx, fileID, string(content)); err != nil {
		return err
	}
	return c.ReindexKnowledgeFile(ctx, fileID, collectionID)
}
