package mapping

import (
	"errors"
	"testing"

	"github.com/fieldforge/goecat/pkg/image"
	"github.com/stretchr/testify/assert"
)

func testSlaves() []SlaveDescription {
	return []SlaveDescription{
		{
			Position: 0, Name: "coupler", Required: true,
			Pdos: []PdoEntry{
				{PdoIndex: 0x6000, SubIndex: 1, Name: "di0", Type: image.BOOLEAN, Dir: image.DirInput},
				{PdoIndex: 0x6000, SubIndex: 2, Name: "di1", Type: image.BOOLEAN, Dir: image.DirInput},
				{PdoIndex: 0x7000, SubIndex: 1, Name: "do0", Type: image.BOOLEAN, Dir: image.DirOutput},
			},
		},
		{
			Position: 1, Name: "analog", Required: true,
			Pdos: []PdoEntry{
				{PdoIndex: 0x6010, SubIndex: 1, Name: "ch1_status", Type: image.UNSIGNED16, Dir: image.DirInput},
				{PdoIndex: 0x6010, SubIndex: 17, Name: "ch1", Type: image.INTEGER16, Dir: image.DirInput},
				{PdoIndex: 0x7010, SubIndex: 1, Name: "ch1_setpoint", Type: image.INTEGER16, Dir: image.DirOutput},
			},
		},
	}
}

func TestBuildLayout(t *testing.T) {
	table, err := Build(testSlaves())
	assert.Nil(t, err)

	// bits packed LSB first, next non bool entry byte aligned
	sig, err := table.Resolve(0, 0x6000, 1)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, sig.ByteOffset)
	assert.EqualValues(t, 0, sig.BitOffset)

	sig, err = table.Resolve(0, 0x6000, 2)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, sig.ByteOffset)
	assert.EqualValues(t, 1, sig.BitOffset)

	sig, err = table.Resolve(1, 0x6010, 1)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, sig.ByteOffset)
	assert.EqualValues(t, image.UNSIGNED16, sig.Type)

	sig, err = table.Resolve(1, 0x6010, 17)
	assert.Nil(t, err)
	assert.EqualValues(t, 3, sig.ByteOffset)

	// outputs are packed independently
	sig, err = table.Resolve(0, 0x7000, 1)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, sig.ByteOffset)
	sig, err = table.Resolve(1, 0x7010, 1)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, sig.ByteOffset)

	assert.EqualValues(t, 5, table.InputSize())
	assert.EqualValues(t, 3, table.OutputSize())

	// one in+out slave and one in+out slave : (1+2)*2
	assert.EqualValues(t, 6, table.ExpectedWorkingCounter())
}

func TestBuildDeterministic(t *testing.T) {
	first, err := Build(testSlaves())
	assert.Nil(t, err)
	second, err := Build(testSlaves())
	assert.Nil(t, err)
	assert.Equal(t, first.Signals(), second.Signals())
	assert.Equal(t, first.InputSize(), second.InputSize())
	assert.Equal(t, first.OutputSize(), second.OutputSize())
}

func TestBuildNoOverlap(t *testing.T) {
	table, err := Build(testSlaves())
	assert.Nil(t, err)

	type region struct {
		dir  image.Direction
		from uint64
		to   uint64 // exclusive, in bits
	}
	var regions []region
	for _, sig := range table.Signals() {
		from := uint64(sig.ByteOffset)*8 + uint64(sig.BitOffset)
		to := from + uint64(sig.Type.Size())*8
		if sig.Type == image.BOOLEAN {
			to = from + 1
		}
		regions = append(regions, region{sig.Dir, from, to})
	}
	for i, a := range regions {
		for j, b := range regions {
			if i == j || a.dir != b.dir {
				continue
			}
			assert.False(t, a.from < b.to && b.from < a.to,
				"regions %v and %v overlap", i, j)
		}
	}
}

func TestBuildOverlappingRegion(t *testing.T) {
	slaves := testSlaves()
	slaves[0].Pdos = append(slaves[0].Pdos,
		PdoEntry{PdoIndex: 0x6000, SubIndex: 1, Name: "dup", Type: image.BOOLEAN, Dir: image.DirInput})
	_, err := Build(slaves)
	assert.True(t, errors.Is(err, ErrOverlappingRegion))
}

func TestBuildDuplicateName(t *testing.T) {
	slaves := testSlaves()
	slaves[1].Pdos = append(slaves[1].Pdos,
		PdoEntry{PdoIndex: 0x6010, SubIndex: 18, Name: "di0", Type: image.BOOLEAN, Dir: image.DirInput})
	_, err := Build(slaves)
	assert.True(t, errors.Is(err, image.ErrDuplicateName))
}

func TestResolveUnknownPdo(t *testing.T) {
	table, err := Build(testSlaves())
	assert.Nil(t, err)
	_, err = table.Resolve(0, 0x6060, 1)
	assert.True(t, errors.Is(err, ErrUnknownPdo))
}

func TestAlias(t *testing.T) {
	table, err := Build(testSlaves())
	assert.Nil(t, err)

	err = table.Alias("emergencyStop", "di0")
	assert.Nil(t, err)

	img, err := table.NewImage()
	assert.Nil(t, err)
	img.Inputs()[0] = 0x01
	v, err := img.GetBool("emergencyStop")
	assert.Nil(t, err)
	assert.True(t, v)

	// outputs may never be aliased
	err = table.Alias("x", "do0")
	assert.True(t, errors.Is(err, image.ErrDirectionViolation))
	err = table.Alias("y", "missing")
	assert.True(t, errors.Is(err, image.ErrUnknownSignal))
	err = table.Alias("di1", "di0")
	assert.True(t, errors.Is(err, image.ErrDuplicateName))
}

func TestRegisterAll(t *testing.T) {
	table, err := Build(testSlaves())
	assert.Nil(t, err)

	img := image.NewImage(table.InputSize(), table.OutputSize())
	err = table.RegisterAll(img)
	assert.Nil(t, err)

	err = img.Set("ch1_setpoint", int16(100))
	assert.Nil(t, err)
}
