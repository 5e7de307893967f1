package probe

// 编译 BPF 对象文件，运行时由 OpenEBPF 按 probe.object 配置的路径加载
// -D__TARGET_ARCH_x86 让 bpf_tracing.h 里的 PT_REGS 宏选对架构
// ARM 机器 (如 Mac M1/M2 Linux 虚拟机) 要改成 -D__TARGET_ARCH_arm64

//go:generate clang -O2 -g -target bpf -D__TARGET_ARCH_x86 -I./bpf/headers -c bpf/netmon.c -o bpf/netmon.bpf.o
