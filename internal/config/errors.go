package config

import "errors"

var (
	ErrNodeIDRequired          = errors.New("node ID is required")
	ErrListenAddrRequired      = errors.New("listen address is required")
	ErrInvalidVNode            = errors.New("vnode count must be greater than 0")
	ErrInvalidReplica          = errors.New("replica factor must be greater than 0")
	ErrDatafileDirRequired     = errors.New("datafile directory is required")
	ErrInvalidMaxData          = errors.New("max data per sstable must be greater than 0")
	ErrInvalidGossipInterval   = errors.New("gossip interval must be greater than 0")
	ErrInvalidResponseProtocol = errors.New(`response protocol must be "any", "all", or a positive integer`)
)
