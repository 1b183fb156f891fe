package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivateIdempotent(t *testing.T) {
	r := New(nil)

	assert.Equal(t, 1, r.Activate("s1"))
	assert.Equal(t, 1, r.Activate("s1"))
	assert.Equal(t, 2, r.Activate("s2"))
	assert.True(t, r.IsActive("s1"))
	assert.False(t, r.IsActive("s3"))
	assert.Equal(t, 2, r.Size())
}

func TestDeactivateUnknownIsNoop(t *testing.T) {
	r := New(nil)
	r.Activate("s1")
	r.Deactivate("ghost")

	assert.Equal(t, 1, r.Size())
	select {
	case <-r.Drained():
		t.Fatal("不应发出排空信号")
	default:
	}
}

func TestDrainedFiresExactlyOnce(t *testing.T) {
	r := New(nil)
	r.Activate("s1")
	r.Activate("s2")

	r.Deactivate("s1")
	select {
	case <-r.Drained():
		t.Fatal("集合未空，不应发出排空信号")
	default:
	}

	r.Deactivate("s2")
	select {
	case <-r.Drained():
	default:
		t.Fatal("最后一个会话移除后应发出排空信号")
	}

	// 重复停用不会再次触发
	r.Deactivate("s2")
	select {
	case <-r.Drained():
		t.Fatal("排空信号只应发出一次")
	default:
	}
}

func TestDrainedFiresPerDrain(t *testing.T) {
	r := New(nil)

	r.Activate("s1")
	r.Deactivate("s1")
	<-r.Drained()

	// 再次排空会再次发出信号
	r.Activate("s2")
	r.Deactivate("s2")
	select {
	case <-r.Drained():
	default:
		t.Fatal("第二次排空也应发出信号")
	}
}
