package cleanup

import (
	"context"
	"fmt"
	"time"
)

// VerifyReferencedBlobs is the audit counterpart of the orphan sweep:
// every blob id referenced by a live checkpoint, share, social share or
// debug log row must still resolve to a URL. Run after a sweep to confirm
// nothing referenced was deleted. Returns the first dangling reference as
// an error.
func (s *Service) VerifyReferencedBlobs(ctx context.Context) error {
	if err := s.verifyCheckpointBlobs(ctx); err != nil {
		return err
	}
	if err := s.verifyShareBlobs(ctx); err != nil {
		return err
	}
	return s.verifyDebugLogBlobs(ctx)
}

func (s *Service) verifyBlob(ctx context.Context, blobID, owner, ownerID string) error {
	url, err := s.blobs.URL(ctx, blobID)
	if err != nil {
		return err
	}
	if url == "" {
		return fmt.Errorf("blob %s referenced by %s %s is missing from the store", blobID, owner, ownerID)
	}
	return nil
}

func (s *Service) verifyCheckpointBlobs(ctx context.Context) error {
	chatCursor := ""
	for {
		chats, next, done, err := s.chats.Page(ctx, chatCursor, s.cfg.ChatCleanupBatchSize)
		if err != nil {
			return err
		}

		for i := range chats {
			chat := &chats[i]
			if chat.SnapshotID != nil {
				if err := s.verifyBlob(ctx, *chat.SnapshotID, "chat", chat.ID); err != nil {
					return err
				}
			}

			cpCursor := ""
			for {
				cps, cpNext, cpDone, err := s.checkpoints.PageByChat(ctx, chat.ID, cpCursor, s.cfg.StorageStateBatchSize)
				if err != nil {
					return err
				}
				for j := range cps {
					cp := &cps[j]
					if cp.StorageID != nil {
						if err := s.verifyBlob(ctx, *cp.StorageID, "checkpoint", cp.ID); err != nil {
							return err
						}
					}
					if cp.SnapshotID != nil {
						if err := s.verifyBlob(ctx, *cp.SnapshotID, "checkpoint", cp.ID); err != nil {
							return err
						}
					}
				}
				if cpDone {
					break
				}
				cpCursor = cpNext
			}
		}

		if done {
			return nil
		}
		chatCursor = next
	}
}

func (s *Service) verifyShareBlobs(ctx context.Context) error {
	cursor := ""
	for {
		shares, next, done, err := s.shares.Page(ctx, cursor, s.cfg.StorageStateBatchSize)
		if err != nil {
			return err
		}
		for i := range shares {
			share := &shares[i]
			if share.ChatHistoryID != nil {
				if err := s.verifyBlob(ctx, *share.ChatHistoryID, "share", share.ID); err != nil {
					return err
				}
			}
			if share.SnapshotID != nil {
				if err := s.verifyBlob(ctx, *share.SnapshotID, "share", share.ID); err != nil {
					return err
				}
			}
		}
		if done {
			break
		}
		cursor = next
	}

	cursor = ""
	for {
		socials, next, done, err := s.shares.PageSocial(ctx, cursor, s.cfg.StorageStateBatchSize)
		if err != nil {
			return err
		}
		for i := range socials {
			if socials[i].ThumbnailID != nil {
				if err := s.verifyBlob(ctx, *socials[i].ThumbnailID, "social share", socials[i].ID); err != nil {
					return err
				}
			}
		}
		if done {
			return nil
		}
		cursor = next
	}
}

func (s *Service) verifyDebugLogBlobs(ctx context.Context) error {
	cursor := ""
	for {
		entries, next, done, err := s.debugLog.PageByCreatedAt(ctx, time.Now(), cursor, s.cfg.DebugFileBatchSize)
		if err != nil {
			return err
		}
		for i := range entries {
			if err := s.verifyBlob(ctx, entries[i].PromptStorageID, "debug log entry", entries[i].ID); err != nil {
				return err
			}
		}
		if done {
			return nil
		}
		cursor = next
	}
}
