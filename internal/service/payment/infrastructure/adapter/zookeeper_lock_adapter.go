package adapter

import (
	"context"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"paysync/internal/pkg/logger"
	"paysync/internal/service/payment/domain"
	"paysync/internal/service/payment/domain/port"
)

const lockRoot = "/paysync_order_locks"

// ZookeeperLocker 是 port.OrderLocker 的分布式实现，供多实例部署使用。
// 每个订单对应一个临时节点：节点已存在即视为竞争，快速失败；
// 持有者会话断开后临时节点自动消失，等价于租约到期。
type ZookeeperLocker struct {
	conn *zk.Conn
}

func NewZookeeperLocker(servers []string, sessionTimeout time.Duration) (*ZookeeperLocker, error) {
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Second
	}
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}

	// 确保根节点存在
	if _, err := conn.Create(lockRoot, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		conn.Close()
		return nil, errors.Wrap(err, "create lock root node")
	}
	return &ZookeeperLocker{conn: conn}, nil
}

func (z *ZookeeperLocker) TryAcquire(ctx context.Context, orderNumber string) (port.Lease, error) {
	path := lockRoot + "/" + orderNumber

	_, err := z.conn.Create(path, []byte{}, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		return nil, domain.ErrLockContention
	}
	if err != nil {
		return nil, errors.Wrapf(err, "create lock node for %s", orderNumber)
	}
	return &zkLease{conn: z.conn, path: path}, nil
}

// Close 关闭 ZooKeeper 连接，所有临时锁节点随会话一起释放。
func (z *ZookeeperLocker) Close() {
	z.conn.Close()
}

type zkLease struct {
	conn *zk.Conn
	path string
}

func (l *zkLease) Release() {
	if err := l.conn.Delete(l.path, -1); err != nil && err != zk.ErrNoNode {
		logger.Ctx(context.Background()).Error().Err(err).
			Str("path", l.path).
			Msg("failed to delete lock node, ephemeral node will expire with session")
	}
}
