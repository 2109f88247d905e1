package arch

// Context holds the callee-saved registers preserved across a
// kernel-to-kernel Swtch. It never carries user-mode state; that lives in
// TrapFrame. The field order must match the order in which arch_arm.s's
// Swtch pushes and pops r4-r12 and lr; PC follows them and Swtch does
// not load it.
type Context struct {
	R4, R5, R6, R7, R8, R9, R10, R11, R12 uint32
	LR                                    uint32
	PC                                    uint32
}

// TrapFrame is the bit-compatible snapshot of user-mode state pushed by
// the assembly trap vector. Field order matches what the vector pushes:
// the banked user-mode stack pointer first, then r0-r14, the trap
// number, the fault address, and the two mode words ahead of the return
// address.
type TrapFrame struct {
	// UserSP is the user-mode stack pointer banked in at trap entry.
	UserSP uint32

	R0, R1, R2, R3, R4, R5, R6, R7, R8, R9, R10, R11, R12, R13, R14 uint32

	Trapno uint32
	Ifar   uint32 // instruction/data fault address, when applicable

	// CPSR is the processor mode the trap was taken to; SavedCPSR is
	// the mode the processor was executing in when the trap fired.
	CPSR      uint32
	SavedCPSR uint32

	PC uint32 // return address
}
