package linker

import (
	"debug/elf"
	"testing"
)

func TestDynamicSectionComputeFlagsZNow(t *testing.T) {
	d := NewDynamicSection()
	ctx := &Context{Args: ContextArgs{ZNow: true}}
	_, flags1 := d.computeFlags(ctx)
	if flags1&DF_1_NOW == 0 {
		t.Errorf("ZNow should set DF_1_NOW, got flags1=%#x", flags1)
	}
}

func TestDynamicSectionComputeFlagsBsymbolic(t *testing.T) {
	d := NewDynamicSection()
	ctx := &Context{Args: ContextArgs{BSymbolic: true}}
	flags, _ := d.computeFlags(ctx)
	if flags&int64(elf.DF_SYMBOLIC) == 0 {
		t.Errorf("BSymbolic should set DF_SYMBOLIC, got flags=%#x", flags)
	}
}

func TestDynamicSectionComputeFlagsZNowSuppressesBsymbolic(t *testing.T) {
	d := NewDynamicSection()
	ctx := &Context{Args: ContextArgs{ZNow: true, BSymbolic: true}}
	flags, flags1 := d.computeFlags(ctx)
	if flags&int64(elf.DF_SYMBOLIC) != 0 {
		t.Errorf("ZNow should take precedence over BSymbolic's DF_SYMBOLIC, got flags=%#x", flags)
	}
	if flags1&DF_1_NOW == 0 {
		t.Errorf("expected DF_1_NOW set, got flags1=%#x", flags1)
	}
}

func TestDynamicSectionComputeFlagsOrigin(t *testing.T) {
	d := NewDynamicSection()
	ctx := &Context{Args: ContextArgs{ZOrigin: true}}
	flags, flags1 := d.computeFlags(ctx)
	if flags&int64(elf.DF_ORIGIN) == 0 || flags1&DF_1_ORIGIN == 0 {
		t.Errorf("ZOrigin should set both DF_ORIGIN and DF_1_ORIGIN, got flags=%#x flags1=%#x", flags, flags1)
	}
}

func TestDF1PieIfPie(t *testing.T) {
	if DF_1_PIE_IF_PIE(true) != DF_1_PIE {
		t.Error("DF_1_PIE_IF_PIE(true) should return DF_1_PIE")
	}
	if DF_1_PIE_IF_PIE(false) != 0 {
		t.Error("DF_1_PIE_IF_PIE(false) should return 0")
	}
}
