// Copyright 2025 DeFlow
//
// FirestoreChannel syncs notifications (and, via LogAudit, arbitrary
// workflow audit entries) to Firestore for durable cross-device history.
// Adapted directly from pkg/firestore/client.go's enabled/no-op Client
// construction and document-path-per-user layout, narrowed to this
// package's notifications/auditTrail paths.

package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// FirestoreConfig configures the Firestore-backed channel.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// FirestoreChannel is a notify.Channel that writes notifications to
// Firestore, and separately exposes LogAudit for workflow audit trail
// entries outside the notification path.
type FirestoreChannel struct {
	mu        sync.RWMutex
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
}

// NewFirestoreChannel creates a Firestore-backed channel. When cfg.Enabled
// is false it returns a valid no-op channel rather than erroring, matching
// the teacher's "disabled Firestore is a no-op, not a startup failure"
// policy so local development never needs real GCP credentials.
func NewFirestoreChannel(ctx context.Context, cfg FirestoreConfig) (*FirestoreChannel, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[Notify:Firestore] ", log.LstdFlags)
	}

	ch := &FirestoreChannel{
		projectID: cfg.ProjectID,
		logger:    cfg.Logger,
		enabled:   cfg.Enabled,
	}

	if !cfg.Enabled {
		cfg.Logger.Println("firestore sync disabled, running in no-op mode")
		return ch, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("notify: FIREBASE_PROJECT_ID is required when Firestore is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to initialize firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create firestore client: %w", err)
	}

	ch.app = app
	ch.firestore = fsClient
	cfg.Logger.Printf("firestore channel initialized for project %s", cfg.ProjectID)
	return ch, nil
}

func (c *FirestoreChannel) Name() string { return "firestore" }

// IsEnabled reports whether this channel performs real writes.
func (c *FirestoreChannel) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Close releases the underlying Firestore client.
func (c *FirestoreChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// Send writes n to /users/{userID}/notifications/{id}.
func (c *FirestoreChannel) Send(ctx context.Context, n Notification) error {
	if !c.IsEnabled() {
		c.logger.Printf("disabled - skipping notification sync for user=%s title=%q", n.UserID, n.Title)
		return nil
	}

	docPath := fmt.Sprintf("users/%s/notifications/%d", n.UserID, time.Now().UnixNano())
	_, err := c.firestore.Doc(docPath).Set(ctx, map[string]interface{}{
		"title":     n.Title,
		"body":      n.Body,
		"severity":  n.Severity,
		"timestamp": n.Timestamp,
		"metadata":  n.Metadata,
	})
	if err != nil {
		return fmt.Errorf("notify: failed to write notification: %w", err)
	}
	return nil
}

// AuditEntry is one entry in a workflow's durable audit trail.
type AuditEntry struct {
	EntryID     string
	WorkflowID  string
	ExecutionID string
	Action      string
	Actor       string
	Timestamp   time.Time
	Details     map[string]interface{}
}

// LogAudit writes an audit entry to /users/{userID}/auditTrail/{entryID}.
func (c *FirestoreChannel) LogAudit(ctx context.Context, userID string, entry AuditEntry) error {
	if !c.IsEnabled() {
		c.logger.Printf("disabled - skipping audit entry for user=%s action=%s", userID, entry.Action)
		return nil
	}

	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("%s_%d", entry.Action, time.Now().UnixNano())
	}
	docPath := fmt.Sprintf("users/%s/auditTrail/%s", userID, entry.EntryID)

	_, err := c.firestore.Doc(docPath).Set(ctx, map[string]interface{}{
		"workflowId":  entry.WorkflowID,
		"executionId": entry.ExecutionID,
		"action":      entry.Action,
		"actor":       entry.Actor,
		"timestamp":   entry.Timestamp,
		"details":     entry.Details,
	})
	if err != nil {
		return fmt.Errorf("notify: failed to write audit entry: %w", err)
	}
	return nil
}
