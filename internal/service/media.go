package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"github.com/diamondheist/diamondbackend/internal/pkg/urlsign"
)

// ProfilePhotoAPI is the bot-API surface the mirror needs.
// *tele.Bot satisfies it.
type ProfilePhotoAPI interface {
	ProfilePhotosOf(user *tele.User) ([]tele.Photo, error)
	File(file *tele.File) (io.ReadCloser, error)
}

// BlobStore persists mirrored objects. *repository.BlobRepository
// satisfies it.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// MediaService mirrors Telegram profile photos into the blob store and
// issues long-lived signed retrieval URLs. Everything here is strictly
// best-effort: failures degrade to a nil URL, never to an error.
type MediaService struct {
	photos  ProfilePhotoAPI
	blobs   BlobStore
	signer  *urlsign.Signer
	bucket  string
	urlTTL  time.Duration
	timeout time.Duration
}

// NewMediaService creates a new MediaService instance.
func NewMediaService(photos ProfilePhotoAPI, blobs BlobStore, signer *urlsign.Signer, bucket string, urlTTL, timeout time.Duration) *MediaService {
	return &MediaService{
		photos:  photos,
		blobs:   blobs,
		signer:  signer,
		bucket:  bucket,
		urlTTL:  urlTTL,
		timeout: timeout,
	}
}

// MirrorProfilePhoto fetches the user's current profile photo, stores it
// under a deterministic key and returns a signed URL. The whole path runs
// under a bounded timeout so it can never stall the primary reply.
func (s *MediaService) MirrorProfilePhoto(ctx context.Context, userID string) *string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan *string, 1)
	go func() {
		done <- s.mirror(ctx, userID)
	}()

	select {
	case url := <-done:
		return url
	case <-ctx.Done():
		log.Warn().Str("user_id", userID).Dur("timeout", s.timeout).Msg("Profile photo mirror timed out")
		return nil
	}
}

func (s *MediaService) mirror(ctx context.Context, userID string) *string {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		log.Warn().Str("user_id", userID).Msg("Cannot mirror photo for non-numeric user id")
		return nil
	}

	photos, err := s.photos.ProfilePhotosOf(&tele.User{ID: id})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Could not fetch user profile photos")
		return nil
	}
	if len(photos) == 0 {
		log.Debug().Str("user_id", userID).Msg("User has no profile photo")
		return nil
	}

	// photos[0] is the most recent photo; telebot already resolves it
	// to the highest-resolution size.
	rc, err := s.photos.File(&photos[0].File)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Could not download profile photo")
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Could not read profile photo")
		return nil
	}

	key := s.objectKey(userID)
	if err := s.blobs.Put(ctx, key, "image/jpeg", data); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Could not store mirrored photo")
		return nil
	}

	url, err := s.signer.SignedURL(key, s.urlTTL)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Could not sign mirrored photo URL")
		return nil
	}

	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Profile photo mirrored")
	return &url
}

// objectKey returns the bucket-scoped deterministic key for a user's
// mirrored photo.
func (s *MediaService) objectKey(userID string) string {
	return fmt.Sprintf("%s/users/%s.jpg", s.bucket, userID)
}
