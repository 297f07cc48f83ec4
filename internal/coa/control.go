package coa

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/vendors/mikrotik"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/aaa"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
)

const defaultCoAPort = 3799

// Result reports how many open sessions a control action touched and how
// many the NAS acknowledged. Attempted > Confirmed means at least one
// packet timed out or was NAKed; the policy store is already updated, so
// the session simply keeps its old treatment until it re-authenticates.
type Result struct {
	Attempted int `json:"attempted"`
	Confirmed int `json:"confirmed"`
}

// Controller pushes session-level changes to NAS devices.
type Controller struct {
	client PacketClient
	logger *zap.Logger
}

func NewController(client PacketClient, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		client: client,
		logger: logger,
	}
}

// DisconnectSessions sends one Disconnect-Request per open session. Errors
// on individual packets are logged and counted, never propagated: a dead
// NAS must not fail the calling workflow.
func (c *Controller) DisconnectSessions(ctx context.Context, nas *model.NasDevice, sessions []aaa.Session) Result {
	result := Result{Attempted: len(sessions)}

	for _, session := range sessions {
		packet := radius.New(radius.CodeDisconnectRequest, []byte(nas.Secret))
		if err := identifySession(packet, session); err != nil {
			c.logger.Warn("build disconnect packet",
				zap.String("username", session.Username),
				zap.Error(err))
			continue
		}

		response, err := c.client.Exchange(ctx, packet, c.addr(nas))
		if err != nil {
			c.logger.Warn("disconnect exchange failed",
				zap.String("nas_ip", nas.IPAddress),
				zap.String("username", session.Username),
				zap.Error(err))
			continue
		}

		if response.Code == radius.CodeDisconnectACK {
			result.Confirmed++
		} else {
			c.logger.Warn("disconnect not acknowledged",
				zap.String("nas_ip", nas.IPAddress),
				zap.String("username", session.Username),
				zap.String("code", response.Code.String()))
		}
	}

	return result
}

// ChangeSessionsRateLimit sends one CoA-Request per open session carrying
// the new rate-limit string, so plan changes apply without kicking the
// subscriber offline.
func (c *Controller) ChangeSessionsRateLimit(ctx context.Context, nas *model.NasDevice, sessions []aaa.Session, rateLimit string) Result {
	result := Result{Attempted: len(sessions)}

	for _, session := range sessions {
		packet := radius.New(radius.CodeCoARequest, []byte(nas.Secret))
		if err := identifySession(packet, session); err != nil {
			c.logger.Warn("build coa packet",
				zap.String("username", session.Username),
				zap.Error(err))
			continue
		}
		if err := mikrotik.MikrotikRateLimit_SetString(packet, rateLimit); err != nil {
			c.logger.Warn("set rate-limit attribute", zap.Error(err))
			continue
		}

		response, err := c.client.Exchange(ctx, packet, c.addr(nas))
		if err != nil {
			c.logger.Warn("coa exchange failed",
				zap.String("nas_ip", nas.IPAddress),
				zap.String("username", session.Username),
				zap.Error(err))
			continue
		}

		if response.Code == radius.CodeCoAACK {
			result.Confirmed++
		} else {
			c.logger.Warn("coa not acknowledged",
				zap.String("nas_ip", nas.IPAddress),
				zap.String("username", session.Username),
				zap.String("code", response.Code.String()))
		}
	}

	return result
}

func (c *Controller) addr(nas *model.NasDevice) string {
	port := nas.CoAPort
	if port <= 0 {
		port = defaultCoAPort
	}
	return fmt.Sprintf("%s:%d", nas.IPAddress, port)
}

// identifySession writes the attributes the NAS needs to locate the
// session: username plus session ID, and the framed address when known.
func identifySession(packet *radius.Packet, session aaa.Session) error {
	if err := rfc2865.UserName_SetString(packet, session.Username); err != nil {
		return err
	}
	if session.SessionID != "" {
		if err := rfc2866.AcctSessionID_SetString(packet, session.SessionID); err != nil {
			return err
		}
	}
	if session.FramedIPAddress != nil {
		if ip := net.ParseIP(*session.FramedIPAddress); ip != nil {
			if err := rfc2865.FramedIPAddress_Set(packet, ip); err != nil {
				return err
			}
		}
	}
	return nil
}
