package quiz

import "fmt"

// NumQuestions 每位玩家需要回答的题目数。
const NumQuestions = 5

// letters 合法答案选项，按字典序排列，平局时取靠前者。
const letters = "ABCDEF"

// roleTable 获胜选项到职业的固定映射。
var roleTable = map[byte]string{
	'A': "Barbarian / Monk (Melee DPS)",
	'B': "Fighter/Knight (Tank)",
	'C': "Rogue / Scout-Ranger (Stealth/Agile)",
	'D': "Gunman / Ranger (Ranged Physical)",
	'E': "Bard / Priest / Alchemist (Support/Healing)",
	'F': "Wizard / Druids / Necromancer / Elementalist / Summoner / Sorcerer / Warlock (Magical Combatants)",
}

// Roles 返回全部职业名，顺序对应选项 A-F。
func Roles() []string {
	out := make([]string, 0, len(letters))
	for i := 0; i < len(letters); i++ {
		out = append(out, roleTable[letters[i]])
	}
	return out
}

// ValidAnswer 检查是否为 A-F 的单字母答案。
func ValidAnswer(answer string) bool {
	if len(answer) != 1 {
		return false
	}
	return answer[0] >= 'A' && answer[0] <= 'F'
}

// Resolve 由完整的 5 个答案计算职业：统计各选项出现次数，
// 取出现最多者；平局时取字典序最小的选项。纯函数，无副作用。
func Resolve(answers []string) (string, error) {
	if len(answers) != NumQuestions {
		return "", fmt.Errorf("quiz: expected %d answers, got %d", NumQuestions, len(answers))
	}
	var counts [len(letters)]int
	for _, a := range answers {
		if !ValidAnswer(a) {
			return "", fmt.Errorf("quiz: invalid answer %q", a)
		}
		counts[a[0]-'A']++
	}
	winner := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[winner] {
			winner = i
		}
	}
	return roleTable[letters[winner]], nil
}
