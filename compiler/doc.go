/*

Process of instruction selection

Graph Description (yaml) ->
	front ->
Scheduled Graph (ir) ->
	back (select) ->
Instruction Sequence (asm) ->
	format ->
Text Dump

The selector walks blocks in reverse RPO and nodes in reverse schedule order,
so instructions covering several nodes are chosen before the nodes they cover.

*/
package compiler
