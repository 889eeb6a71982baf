package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodieshq/linkrelay/internal/flash"
	"github.com/goodieshq/linkrelay/internal/protocol/packets/v1"
	"github.com/goodieshq/linkrelay/internal/utils"
)

const (
	DEFAULT_TARGET     = 1
	DEFAULT_FIRST_HOP  = 1
	DEFAULT_PAGE_SIZE  = flash.DefaultPageSize // largest packet a node accepts
	DEFAULT_RETRIES    = 3
	DEFAULT_KEEPALIVE  = 100 * time.Millisecond
	DEFAULT_TIMEOUT    = time.Second
	DEFAULT_ASSIGN     = true
	DEFAULT_BOOT_AFTER = false
)

var ErrNoReply = errors.New("no reply from target")

// NackError is a firmware error reported by the target
type NackError struct {
	Stage string
	Code  packets.ErrorCode
}

func (e *NackError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Stage, e.Code)
}

func (e *NackError) Unwrap() error {
	return e.Code
}

type RunOpts struct {
	Target        *uint8         // entity id of the unit to update
	FirstHop      *uint8         // id given to the unit the updater talks to
	AssignAddress *bool          // keep the chain addressed with ground station state messages
	Keepalive     *time.Duration // interval of those messages
	PageSize      *uint32
	Retries       *int
	Boot          *bool // send Boot once the image is committed
}

func (r RunOpts) GetTarget() uint8 {
	return utils.DefaultIfNil(r.Target, DEFAULT_TARGET)
}

func (r RunOpts) GetFirstHop() uint8 {
	return utils.DefaultIfNil(r.FirstHop, DEFAULT_FIRST_HOP)
}

func (r RunOpts) GetAssignAddress() bool {
	return utils.DefaultIfNil(r.AssignAddress, DEFAULT_ASSIGN)
}

func (r RunOpts) GetKeepalive() time.Duration {
	return utils.DefaultIfNil(r.Keepalive, DEFAULT_KEEPALIVE)
}

func (r RunOpts) GetPageSize() uint32 {
	size := utils.DefaultIfNil(r.PageSize, DEFAULT_PAGE_SIZE)
	if size == 0 || size > packets.MaxFirmwareData {
		size = packets.MaxFirmwareData
	}
	return size
}

func (r RunOpts) GetRetries() int {
	return utils.DefaultIfNil(r.Retries, DEFAULT_RETRIES)
}

func (r RunOpts) GetBoot() bool {
	return utils.DefaultIfNil(r.Boot, DEFAULT_BOOT_AFTER)
}

type Client interface {
	Upload(ctx context.Context, image []byte, opts RunOpts) error
}
