package plc

import (
	"time"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/mapping"
	"github.com/fieldforge/goecat/pkg/master"
	"github.com/fieldforge/goecat/pkg/server"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultCycleTime  = 1 * time.Millisecond
	DefaultExternSize = 1024
)

// Builder assembles a PLC from its collaborators. Cycle time and
// receive timeout default to 1ms and one cycle time respectively,
// extern memory to 1024 bytes.
type Builder struct {
	name           string
	cycleTime      time.Duration
	receiveTimeout time.Duration
	externSize     int
	serverAddr     string
	transport      goecat.Transport
	table          *mapping.Table
	masterCfg      master.Config
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

func (bld *Builder) CycleTime(d time.Duration) *Builder {
	bld.cycleTime = d
	return bld
}

func (bld *Builder) ReceiveTimeout(d time.Duration) *Builder {
	bld.receiveTimeout = d
	return bld
}

func (bld *Builder) ExternSize(size int) *Builder {
	bld.externSize = size
	return bld
}

// WithServer enables the Modbus TCP diagnostics server on addr
func (bld *Builder) WithServer(addr string) *Builder {
	bld.serverAddr = addr
	return bld
}

func (bld *Builder) Transport(transport goecat.Transport) *Builder {
	bld.transport = transport
	return bld
}

// Mapping provides the frozen table built by the transport's
// configuration step
func (bld *Builder) Mapping(table *mapping.Table) *Builder {
	bld.table = table
	return bld
}

func (bld *Builder) MasterConfig(cfg master.Config) *Builder {
	bld.masterCfg = cfg
	return bld
}

// Build allocates the image from the mapping table, creates the master
// state machine and starts the diagnostics server when configured.
// The bus is considered configured at this point, the master leaves
// INIT immediately.
func (bld *Builder) Build() (*PLC, error) {
	if bld.transport == nil || bld.table == nil {
		return nil, goecat.ErrIllegalArgument
	}
	if bld.cycleTime == 0 {
		bld.cycleTime = DefaultCycleTime
	}
	if bld.receiveTimeout == 0 {
		bld.receiveTimeout = bld.cycleTime
	}
	if bld.externSize == 0 {
		bld.externSize = DefaultExternSize
	}

	img, err := bld.table.NewImage()
	if err != nil {
		return nil, err
	}
	mst := master.NewMaster(bld.masterCfg, bld.table.Slaves())

	plc := &PLC{
		name:           bld.name,
		cycleTime:      bld.cycleTime,
		receiveTimeout: bld.receiveTimeout,
		transport:      bld.transport,
		img:            img,
		mst:            mst,
		ext:            make([]byte, bld.externSize),
		expectedWkc:    bld.table.ExpectedWorkingCounter(),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	if bld.serverAddr != "" {
		plc.srv = server.New()
		if err := plc.srv.Start(bld.serverAddr); err != nil {
			return nil, err
		}
	}

	if err := mst.ConfigurationDone(); err != nil {
		return nil, err
	}
	log.Infof("[PLC] %v built | cycle %v, inputs %v bytes, outputs %v bytes",
		bld.name, bld.cycleTime, bld.table.InputSize(), bld.table.OutputSize())
	return plc, nil
}
