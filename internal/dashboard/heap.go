package dashboard

import (
	"fmt"
	"strings"

	"github.com/babevm/babevm-sub001/internal/vm"
	"github.com/babevm/babevm-sub001/utils"
)

// renderHeap shows the arena's current occupancy as a single progress bar;
// this VM has one generation, not G1's young/old/humongous split, so there
// is only one number to show.
func renderHeap(v *vm.VM, width, height int) string {
	var b strings.Builder

	capacity := v.Arena.Size()
	free := v.Arena.FreeTotal()
	used := capacity - free
	var pct float64
	if capacity > 0 {
		pct = float64(used) / float64(capacity)
	}

	color := GoodColor
	switch {
	case pct > 0.9:
		color = CriticalColor
	case pct > 0.75:
		color = WarningColor
	}

	fmt.Fprintln(&b, TitleStyle.Render("Heap"))
	fmt.Fprintf(&b, "%s %s / %s (%.1f%%)\n",
		CreateProgressBar(pct, width-30, color),
		utils.MemorySize(used), utils.MemorySize(capacity), pct*100)
	fmt.Fprintf(&b, "\nFree: %s\n", utils.MemorySize(free))

	return BoxStyle.Width(width - 4).Height(height - 2).Render(b.String())
}
