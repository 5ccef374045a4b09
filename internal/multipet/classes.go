package multipet

var classNames = [...]string{
	1:  "Warrior",
	2:  "Cleric",
	3:  "Paladin",
	4:  "Ranger",
	5:  "Shadow Knight",
	6:  "Druid",
	7:  "Monk",
	8:  "Bard",
	9:  "Rogue",
	10: "Shaman",
	11: "Necromancer",
	12: "Wizard",
	13: "Magician",
	14: "Enchanter",
	15: "Beastlord",
	16: "Berserker",
}

// ClassName names the owner class carried in a pet list entry.
func ClassName(tag uint32) string {
	if tag == 0 || tag >= uint32(len(classNames)) {
		return "Unknown"
	}
	return classNames[tag]
}
