package nhanes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryCycleHasExactlyOneEra(t *testing.T) {

	seen := make(map[int]int)
	for _, cycle := range AllCycles() {
		era, err := EraForCycle(cycle)
		require.NoError(t, err, cycle)
		require.GreaterOrEqual(t, era.Rank, 1)
		require.LessOrEqual(t, era.Rank, 5)
		seen[era.Rank]++
	}
	// 1 + 4 + 4 + 2 + 1 cycles across the five eras.
	assert.Equal(t, map[int]int{1: 1, 2: 4, 3: 4, 4: 2, 5: 1}, seen)

	_, err := EraForCycle("1997-1998")
	assert.Error(t, err)
}

func TestErasAreOrdered(t *testing.T) {
	es := Eras()
	require.Len(t, es, 5)
	for i, e := range es {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, "Era1_1988-1994", es[0].Label)
	assert.Equal(t, "Era4b_2021-2023", es[4].Label)
}

func TestFileURLs(t *testing.T) {

	const base = "https://wwwn.cdc.gov"

	cases := []struct {
		cycle, comp, want string
	}{
		{"2013-2014", Demo, base + "/Nchs/Nhanes/2013-2014/DEMO_H.xpt"},
		{"1999-2000", MCQ, base + "/Nchs/Nhanes/1999-2000/MCQ.xpt"},
		{"1999-2000", GHB, base + "/Nchs/Nhanes/1999-2000/LAB10.xpt"},
		{"2001-2002", TCHOL, base + "/Nchs/Nhanes/2001-2002/L13_B.xpt"},
		{"2003-2004", GLU, base + "/Nchs/Nhanes/2003-2004/L10AM_C.xpt"},
		{"2005-2006", GHB, base + "/Nchs/Nhanes/2005-2006/GHB_D.xpt"},
		{"2017-2020", Demo, base + "/Nchs/Data/Nhanes/Public/2017/DataFiles/P_DEMO.xpt"},
		{"2017-2020", BPX, base + "/Nchs/Data/Nhanes/Public/2017/DataFiles/P_BPXO.xpt"},
		{"2021-2023", MCQ, base + "/Nchs/Data/Nhanes/Public/2021/DataFiles/MCQ_L.xpt"},
		{"2021-2023", BPX, base + "/Nchs/Data/Nhanes/Public/2021/DataFiles/BPXO_L.xpt"},
	}
	for _, c := range cases {
		got, err := FileURL(base, c.cycle, c.comp)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s %s", c.cycle, c.comp)
	}

	_, err := FileURL(base, "1988-1994", Demo)
	assert.Error(t, err)

	assert.Equal(t, base+"/nchs/data/nhanes3/1a/adult.dat", AdultDatURL(base))
}
