package common

import (
	"fmt"

	"github.com/dargueta/retrodisk"
)

// ClusterMapper converts a cluster number to the first block of the cluster.
// Used when clusters aren't laid out linearly (RSDOS granules skip the
// directory track).
type ClusterMapper func(cluster UnitID) BlockID

// ClusterStream is an abstraction layer for systems that deal with groups of
// multiple blocks, optionally offset from the beginning of the disk. It's used
// for FAT clusters, RSDOS granules and CP/M allocation blocks.
type ClusterStream struct {
	Store             *BlockStore
	BlocksPerCluster  uint
	FirstBlock        BlockID
	FirstValidCluster UnitID
	LastValidCluster  UnitID
	bytesPerCluster   uint
	mapper            ClusterMapper
}

// NewClusterStream creates a stream where cluster `firstValidCluster` starts at
// block `firstBlock` and clusters follow each other linearly.
func NewClusterStream(
	store *BlockStore,
	blocksPerCluster uint,
	firstBlock BlockID,
	firstValidCluster UnitID,
	lastValidCluster UnitID,
) (*ClusterStream, error) {
	if blocksPerCluster == 0 {
		return nil, retrodisk.ErrInvalidArgument.WithMessage("blocks per cluster can't be 0")
	}
	if lastValidCluster < firstValidCluster {
		return nil, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"last valid cluster %d precedes first valid cluster %d",
				lastValidCluster,
				firstValidCluster))
	}

	stream := &ClusterStream{
		Store:             store,
		BlocksPerCluster:  blocksPerCluster,
		FirstBlock:        firstBlock,
		FirstValidCluster: firstValidCluster,
		LastValidCluster:  lastValidCluster,
		bytesPerCluster:   blocksPerCluster * store.BytesPerBlock,
	}

	lastBlock, err := stream.ClusterIDToBlock(lastValidCluster)
	if err != nil {
		return nil, err
	}
	if err = store.CheckIOBounds(lastBlock, stream.bytesPerCluster); err != nil {
		return nil, err
	}
	return stream, nil
}

// NewMappedClusterStream creates a stream whose cluster-to-block translation is
// done by `mapper`.
func NewMappedClusterStream(
	store *BlockStore,
	blocksPerCluster uint,
	firstValidCluster UnitID,
	lastValidCluster UnitID,
	mapper ClusterMapper,
) (*ClusterStream, error) {
	stream, err := NewClusterStream(store, blocksPerCluster, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	stream.FirstValidCluster = firstValidCluster
	stream.LastValidCluster = lastValidCluster
	stream.mapper = mapper

	lastBlock, err := stream.ClusterIDToBlock(lastValidCluster)
	if err != nil {
		return nil, err
	}
	if err = store.CheckIOBounds(lastBlock, stream.bytesPerCluster); err != nil {
		return nil, err
	}
	return stream, nil
}

// BytesPerCluster gives the size of one cluster in bytes.
func (stream *ClusterStream) BytesPerCluster() uint {
	return stream.bytesPerCluster
}

// ClusterIDToBlock takes a cluster ID and returns the ID of the first block of
// that cluster.
func (stream *ClusterStream) ClusterIDToBlock(clusterID UnitID) (BlockID, error) {
	err := stream.CheckIOBounds(clusterID)
	if err != nil {
		return 0, err
	}
	if stream.mapper != nil {
		return stream.mapper(clusterID), nil
	}
	normalizedCluster := uint(clusterID - stream.FirstValidCluster)
	return stream.FirstBlock + (BlockID(normalizedCluster * stream.BlocksPerCluster)), nil
}

func (stream *ClusterStream) CheckIOBounds(cluster UnitID) error {
	if cluster < stream.FirstValidCluster || cluster > stream.LastValidCluster {
		return retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid cluster ID %d: not in range [%d, %d]",
				cluster,
				stream.FirstValidCluster,
				stream.LastValidCluster))
	}
	return nil
}

// Read reads one cluster.
func (stream *ClusterStream) Read(cluster UnitID) ([]byte, error) {
	block, err := stream.ClusterIDToBlock(cluster)
	if err != nil {
		return nil, err
	}
	return stream.Store.ReadRange(block, stream.BlocksPerCluster)
}

// Write writes one cluster. `data` may be shorter than a cluster, in which case
// the remainder is filled with `fill`.
func (stream *ClusterStream) Write(cluster UnitID, data []byte, fill byte) error {
	if uint(len(data)) > stream.bytesPerCluster {
		return retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf(
				"cluster data must be at most %d bytes, got %d",
				stream.bytesPerCluster,
				len(data)))
	}

	block, err := stream.ClusterIDToBlock(cluster)
	if err != nil {
		return err
	}

	buffer := make([]byte, stream.bytesPerCluster)
	copy(buffer, data)
	for i := len(data); i < len(buffer); i++ {
		buffer[i] = fill
	}
	return stream.Store.Write(block, buffer)
}

// WriteChain writes `content` across the clusters of `chain` in order. The
// tail of the last cluster is filled with `fill`.
func (stream *ClusterStream) WriteChain(chain Chain, content []byte, fill byte) error {
	size := int(stream.bytesPerCluster)
	for i, cluster := range chain {
		start := i * size
		end := start + size
		if start > len(content) {
			start = len(content)
		}
		if end > len(content) {
			end = len(content)
		}
		if err := stream.Write(cluster, content[start:end], fill); err != nil {
			return err
		}
	}
	return nil
}
