package services

import (
	"context"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/config"
	"github.com/adi-253/webchat/backend/internal/logging"
	"github.com/adi-253/webchat/backend/internal/policy"
	"github.com/adi-253/webchat/backend/internal/records"
	"github.com/sirupsen/logrus"
)

// Deps are the providers and settings shared by every service. Optional
// providers (LogGroups, Orchestrator, Directory, Cache) may be nil.
type Deps struct {
	Topics       cloud.Topics
	Queues       cloud.Queues
	Objects      cloud.Objects
	LogGroups    cloud.LogGroups
	Orchestrator cloud.Orchestrator
	Directory    cloud.Directory
	Records      records.Store
	Cache        Cache

	Config    *config.Config
	AccountID string
	Log       logrus.FieldLogger

	// Now and NewRoomID/NewSessionID are injectable for tests.
	Now          func() time.Time
	NewRoomID    func() string
	NewSessionID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewRoomID == nil {
		d.NewRoomID = NewRoomID
	}
	if d.NewSessionID == nil {
		d.NewSessionID = NewSessionID
	}
	if d.Cache == nil {
		d.Cache = noCache{}
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	return d
}

// logger prefers the request-scoped logger carried by ctx so service log lines
// keep the request id they were produced under.
func (d Deps) logger(ctx context.Context, service string) logrus.FieldLogger {
	return logging.FromContext(ctx, d.Log).WithField("service", service)
}

func (d Deps) naming() Naming {
	return Naming{Prefix: d.Config.ProjectPrefix, Region: d.Config.AWSRegion, Account: d.AccountID}
}

func (d Deps) topicRoles() policy.TopicRoles {
	return policy.TopicRoles{
		Subscribe: d.Config.Roles.Subscribe,
		Publish:   d.Config.Roles.Publish,
		Delete:    d.Config.Roles.TopicDelete,
		Lifecycle: d.Config.Roles.Lifecycle,
	}
}

func (d Deps) queueRoles() policy.QueueRoles {
	return policy.QueueRoles{
		Creator:      d.Config.Roles.Own,
		Acknowledger: d.Config.Roles.Acknowledger,
		Poller:       d.Config.Roles.Poller,
		Lifecycle:    d.Config.Roles.Lifecycle,
		Cleanup:      d.Config.Roles.QueueDelete,
	}
}
