package xesub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/drmwrapper/xekit/drm"
)

func TestBuildStatsString(t *testing.T) {
	pipeline, drv, _ := newBoundPipeline(t, CreateOptions{})
	scriptQueueAndFence(drv)

	drv.EXPECT().Ioctl(drm.IoctlSyncobjReset, gomock.Any()).Return(nil)
	drv.EXPECT().Ioctl(drm.IoctlExec, gomock.Any()).Return(nil)
	drv.EXPECT().Ioctl(drm.IoctlSyncobjWait, gomock.Any()).Return(nil)
	require.NoError(t, pipeline.SubmitOnce(context.Background()))

	var stats struct {
		State           string
		Cycles          int
		Faulted         bool
		VmId            int
		VmIndeterminate bool
		PlacementMask   string
		MinPageSize     int
		CommandBuffer   struct {
			Handle  int
			Size    int
			Address string
		}
		Queue struct {
			Id          int
			EngineClass int
		}
		Regions  []map[string]int
		Mappings []struct {
			Address string
			Length  int
			Handle  int
		}
	}
	require.NoError(t, json.Unmarshal([]byte(pipeline.BuildStatsString()), &stats))

	require.Equal(t, "Completed", stats.State)
	require.Equal(t, 1, stats.Cycles)
	require.False(t, stats.Faulted)
	require.Equal(t, 7, stats.VmId)
	require.False(t, stats.VmIndeterminate)
	require.Equal(t, "0x1", stats.PlacementMask)
	require.Equal(t, 4096, stats.MinPageSize)

	require.Equal(t, 3, stats.CommandBuffer.Handle)
	require.Equal(t, "0x1000000", stats.CommandBuffer.Address)
	require.Equal(t, 9, stats.Queue.Id)

	require.Len(t, stats.Regions, 3)
	require.Len(t, stats.Mappings, 1)
	require.Equal(t, "0x1000000", stats.Mappings[0].Address)
	require.Equal(t, 4096, stats.Mappings[0].Length)
	require.Equal(t, 3, stats.Mappings[0].Handle)
}
