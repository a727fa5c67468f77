package generator

// System prompts for the AI-backed question kinds. The wording is
// tuned against the production model; treat changes as behavioral.

const promptFillInVocab = `
Generate "fill in the sentence" questions based on a list of Chinese characters. The process is as follows:
1. Generate 5 Chinese vocabularies (if possible) consisting of 2 characters that contains the given character.
2. Generate 3 other characters that are similar to the selected character, ensuring all 4 characters (selected and 3 others) are distinct. They can be:
   - Similar looking (e.g., sharing radicals, like 目 and 日).
   - Similar pronunciation in Cantonese (Jyutping), NOT Mandarin.
   - Similar in meaning but result in nonsensical sentences when substituted.

NOTE:
If no similar words can be found, randomly select 3 other characters that are distinct from the given character.
DO NOT return the given char in similar characters.
Return format must be in JSON, properly formatted with double quotes for property names.

Example Input:
['請', '蘋', '上']
Output:
{
    "questions": [
        {
            "given_char": "請",
            "vocabularies": ["請求", "請假", "請客", "請教", "請安"],
            "similar_characters": [
                "情",
                "清",
                "精",
            ],
        },
        {
            "given_char": "蘋",
            "vocabularies": [
                "蘋果",
            ],
            "similar_characters": ["平", "評", "拼"],
        },
        {
            "given_char": "上",
            "vocabularies": ["上面", "上升", "上課", "上網", "上班"],
            "similar_characters": ["尚", "卜", "卡"],
        },
    ]
}
`

const promptFillInSentence = `
Generate "fill in the sentence" questions based on a list of Chinese characters. The process is as follows:
1. Find a common sentence containing the Chinese character.
2. Identify 3 other characters that are similar to the selected character and ensure all 4 characters (selected and the 3 others) are distinct. They can be:
   - Similar looking (e.g., sharing radicals, like 目 and 日).
   - Similar pronunciation in Cantonese (Jyutping), NOT Mandarin.
   - Similar in meaning but result in nonsensical sentences when substituted.

Note:
No punctuations other than commas are allowed in the sentence.
The sentence should be a complete sentence, not just a phrase.
Sentence should be within 15 characters.
If no similar characters can be found, randomly select 3 other characters that are distinct from the given character.
DO NOT return the given char in similar characters.
The given character should only appear once in the sentence.
Child friendly language should be used.
STRICTLY follow json object format, with double quotes for property names.
If not I will not give you cookies


Example Input:
['請', '蘋', '上']
Output:
{
    "questions": [
        {
            "given_char": "請",
            "sentence": "他們正在請客",
            "similar_characters": [
                "情",
                "清",
                "精",
            ],
        },
        {
            "given_char": "蘋",
            "sentence": "我每天都喝蘋果汁",
            "similar_characters": ["平", "評", "拼"],
        },
        {
            "given_char": "上",
            "sentence": "他站在樓上看風景",
            "similar_characters": ["尚", "卜", "卡"],
        },
    ]
}
`

const promptPairingCards = `
You are tasked with generating vocabulary lists based on a given list of tuples. Each tuple contains:

A Chinese character or word (target_char), which must appear in a final vocabulary word.
n, the desired word length (2 to 4).
k, the number of vocabulary words to generate (1 correct word + k-1 similar alternatives).

Steps:
For each tuple (target_char, n, k):
Generate one valid vocabulary word of length n that includes the given target_char.
Generate k-1 other vocabulary words of the same length (n) and similar difficulty. These alternative words must:
NOT contain the given target_char.
NOT overlap in meaning, pronunciation, or radicals with the correct word.
Be unique and unrelated to each other.
Ensure none of the generated words can recombine to form other valid words.
Output Format:
Return the results as a minimized JSON array where each object contains:

target_char: The given target character.
n: Desired length of the word.
words: A list of k vocabulary words, starting with the correct word followed by the alternatives.

if there is only one character in the list, then just return a single question in a list format, e.g.:
[{"target_char": "請", "n": 3, "words": ["邀請函", "出發點", "動物園", "經理人"]}]

Example Input:
[("請", 3, 4), ("蘋", 2, 3), ("上", 3, 4), ("愛", 4, 5)]

Example Output:
[
  {"target_char":"請","n":3,"words":["邀請函","出發點","動物園","經理人"]},
  {"target_char":"蘋","n":2,"words":["蘋果","香蕉","橘子"]},
  {"target_char":"上","n":3,"words":["樓上層","高山峰","沙漠島","陽光房"]},
  {"target_char":"愛","n":4,"words":["我的愛心","朋友之情","家庭幸福","美好時光","永恆記憶"]}
]
`
